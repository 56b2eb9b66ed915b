package custodian

import (
	"slices"
	"sort"
	"sync"
)

// PermissionCatalog maps permission names to the set of roles directly
// granted each permission. Role sets are immutable once stored; writes
// replace a whole entry so readers never observe a partial update.
type PermissionCatalog struct {
	mu      sync.RWMutex
	entries map[string]roleSet
}

type roleSet map[string]struct{}

func newRoleSet(roles []string) roleSet {
	s := make(roleSet, len(roles))
	for _, r := range roles {
		if r != "" {
			s[r] = struct{}{}
		}
	}
	return s
}

func (s roleSet) sorted() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// NewPermissionCatalog creates a catalog from a permission → roles map.
func NewPermissionCatalog(grants map[string][]string) *PermissionCatalog {
	c := &PermissionCatalog{entries: make(map[string]roleSet, len(grants))}
	for name, roles := range grants {
		c.entries[name] = newRoleSet(roles)
	}
	return c
}

// Exists reports whether name has a catalog entry.
func (c *PermissionCatalog) Exists(name string) bool {
	c.mu.RLock()
	_, ok := c.entries[name]
	c.mu.RUnlock()
	return ok
}

// Roles returns the sorted roles directly granted name.
func (c *PermissionCatalog) Roles(name string) ([]string, bool) {
	c.mu.RLock()
	s, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return s.sorted(), true
}

// Granted returns the first of roles that is directly granted name, in
// the order given, and whether the entry exists at all.
func (c *PermissionCatalog) Granted(name string, roles []string) (matched string, exists bool) {
	c.mu.RLock()
	s, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	for _, r := range roles {
		if _, hit := s[r]; hit {
			return r, true
		}
	}
	return "", true
}

// Set replaces the entry for name. Last write wins.
func (c *PermissionCatalog) Set(name string, roles []string) {
	s := newRoleSet(roles)
	c.mu.Lock()
	c.entries[name] = s
	c.mu.Unlock()
}

// Delete removes the entry for name and reports whether it existed.
func (c *PermissionCatalog) Delete(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; !ok {
		return false
	}
	delete(c.entries, name)
	return true
}

// Names returns the sorted permission names under prefix ("" for all).
func (c *PermissionCatalog) Names(prefix string) []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		if matchPrefix(prefix, name) {
			out = append(out, name)
		}
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// PermissionsForRoles returns the sorted names granted directly to any of roles.
func (c *PermissionCatalog) PermissionsForRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	c.mu.RLock()
	out := make([]string, 0)
	for name, s := range c.entries {
		for _, r := range roles {
			if _, ok := s[r]; ok {
				out = append(out, name)
				break
			}
		}
	}
	c.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Len returns the number of catalog entries.
func (c *PermissionCatalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a deep copy of the catalog with sorted role lists.
func (c *PermissionCatalog) Snapshot() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]string, len(c.entries))
	for name, s := range c.entries {
		out[name] = s.sorted()
	}
	return out
}

// replaceAll swaps in a fresh set of entries in one step.
func (c *PermissionCatalog) replaceAll(grants map[string][]string) {
	entries := make(map[string]roleSet, len(grants))
	for name, roles := range grants {
		entries[name] = newRoleSet(roles)
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
}

func cloneGrants(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}
