package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/role"
)

// Named entry types pair a hook with the plugin name for logging.

type accessDecidedEntry struct {
	name string
	hook AccessDecided
}
type unknownPermissionEntry struct {
	name string
	hook UnknownPermission
}
type hierarchyCycleEntry struct {
	name string
	hook HierarchyCycle
}
type permissionAddedEntry struct {
	name string
	hook PermissionAdded
}
type permissionRemovedEntry struct {
	name string
	hook PermissionRemoved
}
type hierarchyUpdatedEntry struct {
	name string
	hook HierarchyUpdated
}
type hierarchyRemovedEntry struct {
	name string
	hook HierarchyRemoved
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook. Registration is not
// safe for use concurrently with emits; register everything up front.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	accessDecided     []accessDecidedEntry
	unknownPermission []unknownPermissionEntry
	hierarchyCycle    []hierarchyCycleEntry
	permissionAdded   []permissionAddedEntry
	permissionRemoved []permissionRemovedEntry
	hierarchyUpdated  []hierarchyUpdatedEntry
	hierarchyRemoved  []hierarchyRemovedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(AccessDecided); ok {
		r.accessDecided = append(r.accessDecided, accessDecidedEntry{name, h})
	}
	if h, ok := p.(UnknownPermission); ok {
		r.unknownPermission = append(r.unknownPermission, unknownPermissionEntry{name, h})
	}
	if h, ok := p.(HierarchyCycle); ok {
		r.hierarchyCycle = append(r.hierarchyCycle, hierarchyCycleEntry{name, h})
	}
	if h, ok := p.(PermissionAdded); ok {
		r.permissionAdded = append(r.permissionAdded, permissionAddedEntry{name, h})
	}
	if h, ok := p.(PermissionRemoved); ok {
		r.permissionRemoved = append(r.permissionRemoved, permissionRemovedEntry{name, h})
	}
	if h, ok := p.(HierarchyUpdated); ok {
		r.hierarchyUpdated = append(r.hierarchyUpdated, hierarchyUpdatedEntry{name, h})
	}
	if h, ok := p.(HierarchyRemoved); ok {
		r.hierarchyRemoved = append(r.hierarchyRemoved, hierarchyRemovedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Decision emitters
// ──────────────────────────────────────────────────

// EmitAccessDecided notifies all plugins that implement AccessDecided.
func (r *Registry) EmitAccessDecided(ctx context.Context, decision any) {
	for _, e := range r.accessDecided {
		if err := e.hook.OnAccessDecided(ctx, decision); err != nil {
			r.logHookError("OnAccessDecided", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Diagnostic emitters
// ──────────────────────────────────────────────────

// EmitUnknownPermission notifies all plugins that implement UnknownPermission.
func (r *Registry) EmitUnknownPermission(ctx context.Context, name string) {
	for _, e := range r.unknownPermission {
		if err := e.hook.OnUnknownPermission(ctx, name); err != nil {
			r.logHookError("OnUnknownPermission", e.name, err)
		}
	}
}

// EmitHierarchyCycle notifies all plugins that implement HierarchyCycle.
func (r *Registry) EmitHierarchyCycle(ctx context.Context, roleName string, path []string) {
	for _, e := range r.hierarchyCycle {
		if err := e.hook.OnHierarchyCycle(ctx, roleName, path); err != nil {
			r.logHookError("OnHierarchyCycle", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Catalog emitters
// ──────────────────────────────────────────────────

// EmitPermissionAdded notifies all plugins that implement PermissionAdded.
func (r *Registry) EmitPermissionAdded(ctx context.Context, p *permission.Permission) {
	for _, e := range r.permissionAdded {
		if err := e.hook.OnPermissionAdded(ctx, p); err != nil {
			r.logHookError("OnPermissionAdded", e.name, err)
		}
	}
}

// EmitPermissionRemoved notifies all plugins that implement PermissionRemoved.
func (r *Registry) EmitPermissionRemoved(ctx context.Context, name string) {
	for _, e := range r.permissionRemoved {
		if err := e.hook.OnPermissionRemoved(ctx, name); err != nil {
			r.logHookError("OnPermissionRemoved", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Hierarchy emitters
// ──────────────────────────────────────────────────

// EmitHierarchyUpdated notifies all plugins that implement HierarchyUpdated.
func (r *Registry) EmitHierarchyUpdated(ctx context.Context, h *role.Inheritance) {
	for _, e := range r.hierarchyUpdated {
		if err := e.hook.OnHierarchyUpdated(ctx, h); err != nil {
			r.logHookError("OnHierarchyUpdated", e.name, err)
		}
	}
}

// EmitHierarchyRemoved notifies all plugins that implement HierarchyRemoved.
func (r *Registry) EmitHierarchyRemoved(ctx context.Context, roleName string) {
	for _, e := range r.hierarchyRemoved {
		if err := e.hook.OnHierarchyRemoved(ctx, roleName); err != nil {
			r.logHookError("OnHierarchyRemoved", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
