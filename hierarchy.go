package custodian

import (
	"slices"
	"sort"
	"sync"
)

// RoleHierarchy maps a role to the ordered list of roles it inherits
// permissions from. Entries are replaced wholesale and never mutated in
// place. The graph may contain cycles; walks are bounded and cycle safe.
type RoleHierarchy struct {
	mu      sync.RWMutex
	entries map[string][]string
}

// NewRoleHierarchy creates a hierarchy from a role → inherited roles map.
func NewRoleHierarchy(entries map[string][]string) *RoleHierarchy {
	h := &RoleHierarchy{}
	h.replaceAll(entries)
	return h
}

// Parents returns the roles that role directly inherits from.
func (h *RoleHierarchy) Parents(role string) []string {
	h.mu.RLock()
	p := h.entries[role]
	h.mu.RUnlock()
	return slices.Clone(p)
}

// Has reports whether role has a hierarchy entry.
func (h *RoleHierarchy) Has(role string) bool {
	h.mu.RLock()
	_, ok := h.entries[role]
	h.mu.RUnlock()
	return ok
}

// Set replaces the inherited roles of role.
func (h *RoleHierarchy) Set(role string, inherits []string) {
	p := dedupe(inherits)
	h.mu.Lock()
	h.entries[role] = p
	h.mu.Unlock()
}

// Delete removes the entry for role and reports whether it existed.
func (h *RoleHierarchy) Delete(role string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.entries[role]; !ok {
		return false
	}
	delete(h.entries, role)
	return true
}

// Roles returns every role that has an entry, sorted.
func (h *RoleHierarchy) Roles() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.entries))
	for r := range h.entries {
		out = append(out, r)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Snapshot returns a deep copy of the hierarchy.
func (h *RoleHierarchy) Snapshot() map[string][]string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneGrants(h.entries)
}

func (h *RoleHierarchy) replaceAll(entries map[string][]string) {
	next := make(map[string][]string, len(entries))
	for r, p := range entries {
		next[r] = dedupe(p)
	}
	h.mu.Lock()
	h.entries = next
	h.mu.Unlock()
}

type walkNode struct {
	role  string
	depth int
	path  []string
}

// Ancestors walks the hierarchy breadth first from role and returns every
// inherited role in discovery order, excluding role itself. Roles more
// than maxDepth levels away are not followed. Each cycle met along the
// way is returned as the path that closes it, ending with the repeated role.
func (h *RoleHierarchy) Ancestors(role string, maxDepth int) (roles []string, cycles [][]string) {
	if maxDepth <= 0 {
		maxDepth = 10
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	visited := map[string]struct{}{role: {}}
	queue := []walkNode{{role: role, depth: 0, path: []string{role}}}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if node.depth >= maxDepth {
			continue
		}

		for _, parent := range h.entries[node.role] {
			if slices.Contains(node.path, parent) {
				cycles = append(cycles, append(slices.Clone(node.path), parent))
				continue
			}
			if _, seen := visited[parent]; seen {
				continue
			}
			visited[parent] = struct{}{}
			roles = append(roles, parent)
			queue = append(queue, walkNode{
				role:  parent,
				depth: node.depth + 1,
				path:  append(slices.Clone(node.path), parent),
			})
		}
	}

	return roles, cycles
}

// wouldCycle reports whether giving role the parents inherits closes a
// loop, i.e. role is reachable from one of inherits.
func (h *RoleHierarchy) wouldCycle(role string, inherits []string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	visited := make(map[string]struct{})
	queue := slices.Clone(inherits)
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		if r == role {
			return true
		}
		if _, seen := visited[r]; seen {
			continue
		}
		visited[r] = struct{}{}
		queue = append(queue, h.entries[r]...)
	}
	return false
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
