// Package plugin defines lifecycle hooks for the authorization engine.
// Plugins are notified when access is decided, when the permission catalog
// or role hierarchy changes, and when configuration problems are detected.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/role"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Decision hooks
// ──────────────────────────────────────────────────

// AccessDecided is called after a gate reaches an allow or deny decision.
// The decision parameter is *custodian.GateDecision (passed as any to avoid
// an import cycle).
type AccessDecided interface {
	OnAccessDecided(ctx context.Context, decision any) error
}

// ──────────────────────────────────────────────────
// Diagnostic hooks
// ──────────────────────────────────────────────────

// UnknownPermission is called when a check references a permission name
// that has no catalog entry.
type UnknownPermission interface {
	OnUnknownPermission(ctx context.Context, name string) error
}

// HierarchyCycle is called when an inheritance walk from role meets a
// role already on its path. path ends with the repeated role.
type HierarchyCycle interface {
	OnHierarchyCycle(ctx context.Context, role string, path []string) error
}

// ──────────────────────────────────────────────────
// Catalog hooks
// ──────────────────────────────────────────────────

// PermissionAdded is called after a catalog entry is created or replaced.
type PermissionAdded interface {
	OnPermissionAdded(ctx context.Context, p *permission.Permission) error
}

// PermissionRemoved is called after a catalog entry is removed.
type PermissionRemoved interface {
	OnPermissionRemoved(ctx context.Context, name string) error
}

// ──────────────────────────────────────────────────
// Hierarchy hooks
// ──────────────────────────────────────────────────

// HierarchyUpdated is called after a role's inherited roles are replaced.
type HierarchyUpdated interface {
	OnHierarchyUpdated(ctx context.Context, h *role.Inheritance) error
}

// HierarchyRemoved is called after a role's hierarchy entry is removed.
type HierarchyRemoved interface {
	OnHierarchyRemoved(ctx context.Context, roleName string) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
