// Package memory provides an in-memory implementation of the composite
// store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/custodian/checklog"
	"github.com/xraph/custodian/id"
	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/role"
	"github.com/xraph/custodian/store"
)

// Compile-time interface checks.
var (
	_ permission.Store = (*Store)(nil)
	_ role.Store       = (*Store)(nil)
	_ checklog.Store   = (*Store)(nil)
	_ store.Store      = (*Store)(nil)
)

// Store is a thread-safe in-memory store.
type Store struct {
	mu sync.RWMutex

	permissions  map[string]*permission.Permission // name -> entry
	inheritances map[string]*role.Inheritance      // role -> entry
	checkLogs    map[string]*checklog.Entry
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		permissions:  make(map[string]*permission.Permission),
		inheritances: make(map[string]*role.Inheritance),
		checkLogs:    make(map[string]*checklog.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Permission Store
// ──────────────────────────────────────────────────

func (s *Store) PutPermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := copyPermission(p)
	if existing, ok := s.permissions[p.Name]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	}
	s.permissions[p.Name] = c
	return nil
}

func (s *Store) GetPermission(_ context.Context, name string) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[name]
	if !ok {
		return nil, fmt.Errorf("permission %q: %w", name, store.ErrNotFound)
	}
	return copyPermission(p), nil
}

func (s *Store) DeletePermission(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[name]; !ok {
		return fmt.Errorf("permission %q: %w", name, store.ErrNotFound)
	}
	delete(s.permissions, name)
	return nil
}

func (s *Store) ListPermissions(_ context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*permission.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		if filter != nil {
			if filter.Role != "" && !p.HasRole(filter.Role) {
				continue
			}
			if filter.Prefix != "" && !strings.HasPrefix(p.Name, filter.Prefix) {
				continue
			}
			if filter.IsSystem != nil && p.IsSystem != *filter.IsSystem {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyPermission(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	if filter == nil {
		return result, nil
	}
	return applyPagination(result, filter.Limit, filter.Offset), nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	var f *permission.ListFilter
	if filter != nil {
		c := *filter
		c.Limit, c.Offset = 0, 0
		f = &c
	}
	list, err := s.ListPermissions(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

// ──────────────────────────────────────────────────
// Role hierarchy Store
// ──────────────────────────────────────────────────

func (s *Store) PutInheritance(_ context.Context, h *role.Inheritance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := copyInheritance(h)
	if existing, ok := s.inheritances[h.Role]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	}
	s.inheritances[h.Role] = c
	return nil
}

func (s *Store) GetInheritance(_ context.Context, roleName string) (*role.Inheritance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.inheritances[roleName]
	if !ok {
		return nil, fmt.Errorf("hierarchy %q: %w", roleName, store.ErrNotFound)
	}
	return copyInheritance(h), nil
}

func (s *Store) DeleteInheritance(_ context.Context, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inheritances[roleName]; !ok {
		return fmt.Errorf("hierarchy %q: %w", roleName, store.ErrNotFound)
	}
	delete(s.inheritances, roleName)
	return nil
}

func (s *Store) ListInheritances(_ context.Context, filter *role.ListFilter) ([]*role.Inheritance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*role.Inheritance, 0, len(s.inheritances))
	for _, h := range s.inheritances {
		if filter != nil {
			if filter.Inherits != "" && !h.InheritsFrom(filter.Inherits) {
				continue
			}
			if filter.IsSystem != nil && h.IsSystem != *filter.IsSystem {
				continue
			}
		}
		result = append(result, copyInheritance(h))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Role < result[j].Role })
	if filter == nil {
		return result, nil
	}
	return applyPagination(result, filter.Limit, filter.Offset), nil
}

// ──────────────────────────────────────────────────
// Check Log Store
// ──────────────────────────────────────────────────

func (s *Store) CreateCheckLog(_ context.Context, e *checklog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkLogs[e.ID.String()] = copyCheckLog(e)
	return nil
}

func (s *Store) GetCheckLog(_ context.Context, logID id.CheckLogID) (*checklog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.checkLogs[logID.String()]
	if !ok {
		return nil, fmt.Errorf("check log %s: %w", logID, store.ErrNotFound)
	}
	return copyCheckLog(e), nil
}

func (s *Store) ListCheckLogs(_ context.Context, filter *checklog.QueryFilter) ([]*checklog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*checklog.Entry, 0, len(s.checkLogs))
	for _, e := range s.checkLogs {
		if filter != nil && !matchCheckLog(e, filter) {
			continue
		}
		result = append(result, copyCheckLog(e))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() > result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter == nil {
		return result, nil
	}
	return applyPagination(result, filter.Limit, filter.Offset), nil
}

func (s *Store) CountCheckLogs(ctx context.Context, filter *checklog.QueryFilter) (int64, error) {
	var f *checklog.QueryFilter
	if filter != nil {
		c := *filter
		c.Limit, c.Offset = 0, 0
		f = &c
	}
	list, err := s.ListCheckLogs(ctx, f)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) PurgeCheckLogs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, e := range s.checkLogs {
		if e.CreatedAt.Before(before) {
			delete(s.checkLogs, k)
			count++
		}
	}
	return count, nil
}

func (s *Store) DeleteCheckLogsByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.checkLogs {
		if e.TenantID == tenantID {
			delete(s.checkLogs, k)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func matchCheckLog(e *checklog.Entry, f *checklog.QueryFilter) bool {
	switch {
	case f.TenantID != "" && e.TenantID != f.TenantID:
		return false
	case f.SubjectID != "" && e.SubjectID != f.SubjectID:
		return false
	case f.SubjectRole != "" && e.SubjectRole != f.SubjectRole:
		return false
	case f.Path != "" && e.Path != f.Path:
		return false
	case f.Decision != "" && e.Decision != f.Decision:
		return false
	case f.Granted != nil && e.Granted != *f.Granted:
		return false
	case f.After != nil && e.CreatedAt.Before(*f.After):
		return false
	case f.Before != nil && e.CreatedAt.After(*f.Before):
		return false
	}
	return true
}

func copyPermission(p *permission.Permission) *permission.Permission {
	c := *p
	c.Roles = append([]string(nil), p.Roles...)
	return &c
}

func copyInheritance(h *role.Inheritance) *role.Inheritance {
	c := *h
	c.Inherits = append([]string(nil), h.Inherits...)
	return &c
}

func copyCheckLog(e *checklog.Entry) *checklog.Entry {
	c := *e
	c.Permissions = append([]string(nil), e.Permissions...)
	return &c
}

func applyPagination[T any](items []*T, limit, offset int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset > 0 && offset >= len(items) {
		return nil
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
