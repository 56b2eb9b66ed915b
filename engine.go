package custodian

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"

	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/plugin"
	"github.com/xraph/custodian/role"
	"github.com/xraph/custodian/store"
)

// Engine is the central authorization engine. It composes the permission
// catalog, the role hierarchy and the ownership registry, keeps them in
// sync with the optional store, and fires plugin hooks.
type Engine struct {
	catalog   *PermissionCatalog
	hierarchy *RoleHierarchy
	ownership *OwnershipRegistry

	store   store.Store
	cache   Cache
	audit   AuditSink
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config

	policy     PolicySet
	extraRules []OwnershipRule

	gen atomic.Uint64

	// adminMu serializes mutations from the store write through the
	// in-memory swap. policyMu lets cached resolution read a registry state
	// and its fingerprint as one unit; swaps hold it exclusively.
	adminMu     sync.Mutex
	policyMu    sync.RWMutex
	fingerprint string

	cycleMu      sync.Mutex
	cyclesWarned map[string]struct{}
}

// NewEngine creates a new Custodian engine with the given options.
// Without WithPolicy the registries are seeded from BuiltinPolicy.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:       slog.Default(),
		config:       DefaultConfig(),
		policy:       BuiltinPolicy(),
		cyclesWarned: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	for name, roles := range e.policy.Permissions {
		if err := ValidatePermissionName(name); err != nil {
			return nil, err
		}
		for _, r := range roles {
			if err := validateRoleName(r); err != nil {
				return nil, fmt.Errorf("permission %q: %w", name, err)
			}
		}
	}

	e.catalog = NewPermissionCatalog(e.policy.Permissions)
	e.hierarchy = NewRoleHierarchy(e.policy.Hierarchy)
	e.ownership = NewOwnershipRegistry(append(slices.Clone(e.policy.Ownership), e.extraRules...)...)
	e.fingerprint = e.policyFingerprint()

	if e.audit == nil && e.store != nil && e.config.auditEnabled() {
		e.audit = NewCheckLogSink(e.store)
	}
	return e, nil
}

// Store returns the underlying composite store (may be nil).
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Catalog returns the live permission catalog.
func (e *Engine) Catalog() *PermissionCatalog { return e.catalog }

// Hierarchy returns the live role hierarchy.
func (e *Engine) Hierarchy() *RoleHierarchy { return e.hierarchy }

// Ownership returns the ownership rule registry.
func (e *Engine) Ownership() *OwnershipRegistry { return e.ownership }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.config }

// Generation returns the policy generation. It increases on every
// catalog or hierarchy change.
func (e *Engine) Generation() uint64 { return e.gen.Load() }

// Start loads the registries from the store. An empty store is seeded
// with the engine's current policy so later restarts pick it up.
func (e *Engine) Start(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	perms, inherits, err := e.loadPolicy(ctx)
	if err != nil {
		return err
	}
	if len(perms) == 0 && len(inherits) == 0 {
		return e.seedStore(ctx)
	}
	e.applyPolicy(ctx, perms, inherits)
	return nil
}

// Reload replaces the registries with the store's current contents.
func (e *Engine) Reload(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	perms, inherits, err := e.loadPolicy(ctx)
	if err != nil {
		return err
	}
	e.applyPolicy(ctx, perms, inherits)
	return nil
}

// Stop performs graceful shutdown.
func (e *Engine) Stop(ctx context.Context) error {
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

func (e *Engine) loadPolicy(ctx context.Context) ([]*permission.Permission, []*role.Inheritance, error) {
	perms, err := e.store.ListPermissions(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("custodian: load permissions: %w", err)
	}
	inherits, err := e.store.ListInheritances(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("custodian: load role hierarchy: %w", err)
	}
	return perms, inherits, nil
}

func (e *Engine) applyPolicy(ctx context.Context, perms []*permission.Permission, inherits []*role.Inheritance) {
	grants := make(map[string][]string, len(perms))
	for _, p := range perms {
		grants[p.Name] = p.Roles
	}
	parents := make(map[string][]string, len(inherits))
	for _, h := range inherits {
		parents[h.Role] = h.Inherits
	}
	e.swap(ctx, func() {
		e.catalog.replaceAll(grants)
		e.hierarchy.replaceAll(parents)
	})

	e.logger.Info("custodian policy loaded",
		slog.Int("permissions", len(grants)),
		slog.Int("hierarchy_entries", len(parents)),
	)
}

func (e *Engine) seedStore(ctx context.Context) error {
	now := time.Now().UTC()
	for name, roles := range e.catalog.Snapshot() {
		p := newPermissionRecord(name, roles, now)
		p.IsSystem = true
		if err := e.store.PutPermission(ctx, p); err != nil {
			return fmt.Errorf("custodian: seed permission %q: %w", name, err)
		}
	}
	for r, parents := range e.hierarchy.Snapshot() {
		h := newInheritanceRecord(r, parents, now)
		h.IsSystem = true
		if err := e.store.PutInheritance(ctx, h); err != nil {
			return fmt.Errorf("custodian: seed hierarchy %q: %w", r, err)
		}
	}
	e.logger.Info("custodian policy store seeded",
		slog.Int("permissions", e.catalog.Len()),
	)
	return nil
}

// ──────────────────────────────────────────────────
// Permission checks
// ──────────────────────────────────────────────────

// HasPermission reports whether user holds the named permission. res is
// only consulted for ownership-qualified ("_own") permissions.
func (e *Engine) HasPermission(ctx context.Context, user *User, name string, res *Resource) bool {
	return e.evaluate(ctx, user, name, res).Allowed
}

// CheckPermission is HasPermission with the full evaluation detail.
func (e *Engine) CheckPermission(ctx context.Context, user *User, name string, res *Resource) *CheckResult {
	start := time.Now()
	r := e.evaluate(ctx, user, name, res)
	r.EvalTimeNs = time.Since(start).Nanoseconds()
	return r
}

// evaluate resolves a permission in order: direct grant, inherited grant,
// then the ownership fallback for "_own" names with a resource.
func (e *Engine) evaluate(ctx context.Context, user *User, name string, res *Resource) *CheckResult {
	r := &CheckResult{Permission: name}

	if user == nil {
		r.Decision = DecisionDenyUnauthenticated
		r.Reason = "no user"
		return r
	}

	roles := user.EffectiveRoles()

	// 1. Direct grant.
	matched, exists := e.catalog.Granted(name, roles)
	if !exists {
		e.reportUnknown(ctx, name)
		r.Decision = DecisionDenyUnknownPermission
		r.Reason = "unknown permission"
		return r
	}
	if matched != "" {
		return allow(r, SourceDirect, matched)
	}

	// 2. Inherited grant.
	for _, held := range roles {
		if matched, _ = e.catalog.Granted(name, e.ancestors(ctx, held)); matched != "" {
			return allow(r, SourceInherited, matched)
		}
	}

	// 3. Ownership fallback.
	if res != nil && IsOwnPermission(name) {
		base := e.evaluate(ctx, user, BasePermission(name), nil)
		if base.Allowed && e.CheckOwnership(user, res) {
			return allow(r, SourceOwnership, base.MatchedRole)
		}
	}

	r.Decision = DecisionDenyNoPerms
	r.Reason = "no held role grants " + name
	return r
}

func allow(r *CheckResult, src GrantSource, matchedRole string) *CheckResult {
	r.Allowed = true
	r.Decision = DecisionAllow
	r.Source = src
	r.MatchedRole = matchedRole
	return r
}

// CheckOwnership reports whether user owns res according to the rule
// registered for res.Type. Untyped resources and types without a rule
// are never owned.
func (e *Engine) CheckOwnership(user *User, res *Resource) bool {
	if user == nil || res == nil || res.Type == "" {
		return false
	}
	rule, ok := e.ownership.Lookup(res.Type)
	if !ok {
		return false
	}
	return rule.Evaluate(user, res)
}

// CheckPermissions evaluates every name independently against the same
// resource. The result has an entry for each requested name.
func (e *Engine) CheckPermissions(ctx context.Context, user *User, names []string, res *Resource) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, r := range e.checkAll(ctx, user, names, res) {
		out[r.Permission] = r.Allowed
	}
	return out
}

func (e *Engine) checkAll(ctx context.Context, user *User, names []string, res *Resource) []*CheckResult {
	results := make([]*CheckResult, 0, len(names))
	for _, name := range names {
		results = append(results, e.CheckPermission(ctx, user, name, res))
	}
	return results
}

// CanAccess reports whether user may perform action on res: either the
// plain permission is held, or the "_own" variant is held and user owns res.
// The "_own" variant is only evaluated when the catalog defines it.
func (e *Engine) CanAccess(ctx context.Context, user *User, action string, res *Resource) bool {
	if e.HasPermission(ctx, user, action, nil) {
		return true
	}
	own := OwnPermission(action)
	if !e.catalog.Exists(own) {
		return false
	}
	return e.HasPermission(ctx, user, own, nil) && e.CheckOwnership(user, res)
}

// FilterResources returns the resources user may perform action on, in
// their original order.
func (e *Engine) FilterResources(ctx context.Context, user *User, resources []*Resource, action string) []*Resource {
	out := make([]*Resource, 0, len(resources))
	for _, res := range resources {
		if e.CanAccess(ctx, user, action, res) {
			out = append(out, res)
		}
	}
	return out
}

// ──────────────────────────────────────────────────
// Effective permissions
// ──────────────────────────────────────────────────

// RolePermissions returns the sorted permissions granted to role directly
// or through any role it inherits from.
func (e *Engine) RolePermissions(ctx context.Context, roleName string) []string {
	if roleName == "" {
		return []string{}
	}
	e.policyMu.RLock()
	defer e.policyMu.RUnlock()

	key := "perms:" + e.fingerprint + ":" + roleName
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, key); ok {
			return slices.Clone(cached)
		}
	}

	roles := append([]string{roleName}, e.ancestorsLocked(ctx, roleName)...)
	perms := e.catalog.PermissionsForRoles(roles)
	if perms == nil {
		perms = []string{}
	}

	if e.cache != nil {
		e.cache.Set(ctx, key, slices.Clone(perms))
	}
	return perms
}

// EffectivePermissions returns the sorted union of RolePermissions over
// every role the user holds. It is empty for a nil user or a user
// without roles.
func (e *Engine) EffectivePermissions(ctx context.Context, user *User) []string {
	roles := user.EffectiveRoles()
	if len(roles) == 0 {
		return []string{}
	}
	if len(roles) == 1 {
		return e.RolePermissions(ctx, roles[0])
	}
	set := make(map[string]struct{})
	for _, r := range roles {
		for _, p := range e.RolePermissions(ctx, r) {
			set[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ancestors returns the roles roleName inherits from, bounded by
// MaxHierarchyDepth, and reports any cycle met on the way.
func (e *Engine) ancestors(ctx context.Context, roleName string) []string {
	e.policyMu.RLock()
	defer e.policyMu.RUnlock()
	return e.ancestorsLocked(ctx, roleName)
}

// ancestorsLocked is ancestors for callers already holding policyMu.
func (e *Engine) ancestorsLocked(ctx context.Context, roleName string) []string {
	key := "anc:" + e.fingerprint + ":" + roleName
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, key); ok {
			return cached
		}
	}

	roles, cycles := e.hierarchy.Ancestors(roleName, e.config.hierarchyDepth())
	for _, path := range cycles {
		e.reportCycle(ctx, roleName, path)
	}

	if e.cache != nil {
		e.cache.Set(ctx, key, roles)
	}
	return roles
}

// ──────────────────────────────────────────────────
// Diagnostics
// ──────────────────────────────────────────────────

func (e *Engine) reportUnknown(ctx context.Context, name string) {
	e.logger.Warn("unknown permission",
		slog.String("permission", name),
		slog.String("error", ErrUnknownPermission.Error()),
	)
	if e.plugins != nil {
		e.plugins.EmitUnknownPermission(ctx, name)
	}
}

// reportCycle warns once per cycle per policy generation.
func (e *Engine) reportCycle(ctx context.Context, roleName string, path []string) {
	key := strings.Join(path, ">")
	e.cycleMu.Lock()
	_, seen := e.cyclesWarned[key]
	if !seen {
		e.cyclesWarned[key] = struct{}{}
	}
	e.cycleMu.Unlock()
	if seen {
		return
	}

	e.logger.Warn("role hierarchy cycle",
		slog.String("role", roleName),
		slog.String("path", strings.Join(path, " -> ")),
	)
	if e.plugins != nil {
		e.plugins.EmitHierarchyCycle(ctx, roleName, path)
	}
}

// swap applies a registry change and moves to a new generation while
// cached resolution is held off.
func (e *Engine) swap(ctx context.Context, apply func()) {
	e.policyMu.Lock()
	defer e.policyMu.Unlock()
	apply()
	e.bumpGeneration(ctx)
}

// bumpGeneration invalidates every cached role resolution. Callers hold
// policyMu exclusively.
func (e *Engine) bumpGeneration(ctx context.Context) {
	e.gen.Add(1)
	e.fingerprint = e.policyFingerprint()
	if e.cache != nil {
		e.cache.Purge(ctx)
	}
	e.cycleMu.Lock()
	e.cyclesWarned = make(map[string]struct{})
	e.cycleMu.Unlock()
}

// policyFingerprint hashes the catalog, the hierarchy and the walk depth.
// Cache keys carry it, so engines sharing a cache only share entries
// computed from an identical policy.
func (e *Engine) policyFingerprint() string {
	h := blake3.New()
	writeSection := func(tag string, entries map[string][]string) {
		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		sort.Strings(names)
		_, _ = io.WriteString(h, tag + "\x1d")
		for _, name := range names {
			_, _ = io.WriteString(h, name + "\x1e" + strings.Join(entries[name], "\x1f") + "\x1e")
		}
	}
	writeSection("catalog", e.catalog.Snapshot())
	writeSection("hierarchy", e.hierarchy.Snapshot())
	_, _ = io.WriteString(h, fmt.Sprintf("depth\x1d%d", e.config.hierarchyDepth()))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
