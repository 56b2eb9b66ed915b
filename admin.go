package custodian

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xraph/custodian/id"
	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/role"
	"github.com/xraph/custodian/store"
)

// ──────────────────────────────────────────────────
// Permission catalog administration
// ──────────────────────────────────────────────────

// AddPermission creates or replaces the catalog entry for name. The role
// set replaces any previous one entirely.
func (e *Engine) AddPermission(ctx context.Context, name string, roles []string) (*permission.Permission, error) {
	return e.PutPermission(ctx, &permission.Permission{Name: name, Roles: roles})
}

// PutPermission creates or replaces a catalog entry from a full record.
// The store is written before the in-memory catalog.
func (e *Engine) PutPermission(ctx context.Context, p *permission.Permission) (*permission.Permission, error) {
	if err := ValidatePermissionName(p.Name); err != nil {
		return nil, err
	}
	for _, r := range p.Roles {
		if err := validateRoleName(r); err != nil {
			return nil, fmt.Errorf("permission %q: %w", p.Name, err)
		}
	}

	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	rec := newPermissionRecord(p.Name, p.Roles, time.Now().UTC())
	rec.Description = p.Description
	rec.IsSystem = p.IsSystem

	if e.store != nil {
		existing, err := e.store.GetPermission(ctx, p.Name)
		switch {
		case err == nil:
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			rec.IsSystem = rec.IsSystem || existing.IsSystem
			if rec.Description == "" {
				rec.Description = existing.Description
			}
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("custodian: add permission %q: %w", p.Name, err)
		}
		if err := e.store.PutPermission(ctx, rec); err != nil {
			return nil, fmt.Errorf("custodian: add permission %q: %w", p.Name, err)
		}
	}

	e.swap(ctx, func() { e.catalog.Set(rec.Name, rec.Roles) })

	e.logger.Debug("permission updated",
		slog.String("permission", rec.Name),
		slog.Any("roles", rec.Roles),
	)
	if e.plugins != nil {
		e.plugins.EmitPermissionAdded(ctx, rec)
	}
	return rec, nil
}

// RemovePermission deletes the catalog entry for name. Later checks
// treat name as unknown.
func (e *Engine) RemovePermission(ctx context.Context, name string) error {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	if !e.catalog.Exists(name) {
		return fmt.Errorf("%w: %s", ErrPermissionNotFound, name)
	}
	if e.store != nil {
		if err := e.store.DeletePermission(ctx, name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("custodian: remove permission %q: %w", name, err)
		}
	}

	e.swap(ctx, func() { e.catalog.Delete(name) })

	e.logger.Debug("permission removed", slog.String("permission", name))
	if e.plugins != nil {
		e.plugins.EmitPermissionRemoved(ctx, name)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Role hierarchy administration
// ──────────────────────────────────────────────────

// UpdateRoleHierarchy replaces the roles roleName inherits from. Updates
// that close a cycle are accepted with a warning, or rejected with
// ErrCyclicRoleInheritance when StrictHierarchy is set.
func (e *Engine) UpdateRoleHierarchy(ctx context.Context, roleName string, inherits []string) (*role.Inheritance, error) {
	if err := validateRoleName(roleName); err != nil {
		return nil, err
	}
	for _, r := range inherits {
		if err := validateRoleName(r); err != nil {
			return nil, fmt.Errorf("role %q: %w", roleName, err)
		}
	}

	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	if e.hierarchy.wouldCycle(roleName, inherits) {
		if e.config.StrictHierarchy {
			return nil, fmt.Errorf("%w: %s inherits %v", ErrCyclicRoleInheritance, roleName, inherits)
		}
		e.logger.Warn("role hierarchy update introduces a cycle",
			slog.String("role", roleName),
			slog.Any("inherits", inherits),
		)
	}

	rec := newInheritanceRecord(roleName, inherits, time.Now().UTC())

	if e.store != nil {
		existing, err := e.store.GetInheritance(ctx, roleName)
		switch {
		case err == nil:
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
			rec.IsSystem = existing.IsSystem
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("custodian: update hierarchy %q: %w", roleName, err)
		}
		if err := e.store.PutInheritance(ctx, rec); err != nil {
			return nil, fmt.Errorf("custodian: update hierarchy %q: %w", roleName, err)
		}
	}

	e.swap(ctx, func() { e.hierarchy.Set(rec.Role, rec.Inherits) })

	e.logger.Debug("role hierarchy updated",
		slog.String("role", rec.Role),
		slog.Any("inherits", rec.Inherits),
	)
	if e.plugins != nil {
		e.plugins.EmitHierarchyUpdated(ctx, rec)
	}
	return rec, nil
}

// RemoveRoleHierarchy deletes the hierarchy entry for roleName so it no
// longer inherits from any role.
func (e *Engine) RemoveRoleHierarchy(ctx context.Context, roleName string) error {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	if !e.hierarchy.Has(roleName) {
		return fmt.Errorf("%w: %s", ErrHierarchyNotFound, roleName)
	}
	if e.store != nil {
		if err := e.store.DeleteInheritance(ctx, roleName); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("custodian: remove hierarchy %q: %w", roleName, err)
		}
	}

	e.swap(ctx, func() { e.hierarchy.Delete(roleName) })

	e.logger.Debug("role hierarchy removed", slog.String("role", roleName))
	if e.plugins != nil {
		e.plugins.EmitHierarchyRemoved(ctx, roleName)
	}
	return nil
}

// RegisterOwnership adds an ownership rule. It replaces any earlier rule
// for the same resource type.
func (e *Engine) RegisterOwnership(rule OwnershipRule) {
	e.ownership.Register(rule)
}

// ──────────────────────────────────────────────────
// Introspection
// ──────────────────────────────────────────────────

// PermissionCatalogSnapshot returns a copy of the catalog: permission name
// to sorted roles.
func (e *Engine) PermissionCatalogSnapshot() map[string][]string {
	return e.catalog.Snapshot()
}

// RoleHierarchySnapshot returns a copy of the hierarchy.
func (e *Engine) RoleHierarchySnapshot() map[string][]string {
	return e.hierarchy.Snapshot()
}

func newPermissionRecord(name string, roles []string, now time.Time) *permission.Permission {
	rs := dedupe(roles)
	sort.Strings(rs)
	return &permission.Permission{
		ID:        id.NewPermissionID(),
		Name:      name,
		Roles:     rs,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newInheritanceRecord(roleName string, inherits []string, now time.Time) *role.Inheritance {
	return &role.Inheritance{
		ID:        id.NewHierarchyID(),
		Role:      roleName,
		Inherits:  dedupe(inherits),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
