package custodian

import (
	"fmt"
	"sync"
)

// OwnershipRule decides whether a user owns a resource of the types it
// matches. Rules must be pure and synchronous.
type OwnershipRule interface {
	// Matches reports whether the rule applies to a resource type tag.
	Matches(resourceType string) bool

	// Evaluate reports whether user owns res.
	Evaluate(user *User, res *Resource) bool
}

// OwnershipFunc is a predicate over a user and a resource.
type OwnershipFunc func(user *User, res *Resource) bool

type funcRule struct {
	resourceType string
	fn           OwnershipFunc
}

func (r funcRule) Matches(t string) bool                   { return t == r.resourceType }
func (r funcRule) Evaluate(user *User, res *Resource) bool { return r.fn(user, res) }

// Ownership returns a rule for resourceType backed by fn.
func Ownership(resourceType string, fn OwnershipFunc) OwnershipRule {
	return funcRule{resourceType: resourceType, fn: fn}
}

// FieldOwnership grants ownership when a field of the user equals a field
// of the resource, e.g. user "id" == resource "employeeId". Missing or
// empty values never match.
type FieldOwnership struct {
	ResourceType  string `json:"resource_type"`
	UserField     string `json:"user_field,omitempty"` // defaults to "id"
	ResourceField string `json:"resource_field"`
}

// Matches implements OwnershipRule.
func (f FieldOwnership) Matches(t string) bool { return t == f.ResourceType }

// Evaluate implements OwnershipRule.
func (f FieldOwnership) Evaluate(user *User, res *Resource) bool {
	uf := f.UserField
	if uf == "" {
		uf = "id"
	}
	uv, ok := user.Attr(uf)
	if !ok {
		return false
	}
	rv, ok := res.Attr(f.ResourceField)
	if !ok {
		return false
	}
	us, rs := fmt.Sprint(uv), fmt.Sprint(rv)
	return us != "" && us == rs
}

// OwnershipRegistry holds ownership rules keyed by the resource types they
// match. When several rules match a type, the most recently registered wins.
type OwnershipRegistry struct {
	mu    sync.RWMutex
	rules []OwnershipRule
}

// NewOwnershipRegistry creates a registry holding rules.
func NewOwnershipRegistry(rules ...OwnershipRule) *OwnershipRegistry {
	r := &OwnershipRegistry{}
	for _, rule := range rules {
		r.Register(rule)
	}
	return r
}

// Register adds a rule. Nil rules are ignored.
func (r *OwnershipRegistry) Register(rule OwnershipRule) {
	if rule == nil {
		return
	}
	r.mu.Lock()
	// Copy on write so Lookup can iterate a stable slice.
	next := make([]OwnershipRule, len(r.rules), len(r.rules)+1)
	copy(next, r.rules)
	r.rules = append(next, rule)
	r.mu.Unlock()
}

// Lookup returns the rule for resourceType.
func (r *OwnershipRegistry) Lookup(resourceType string) (OwnershipRule, bool) {
	r.mu.RLock()
	rules := r.rules
	r.mu.RUnlock()
	for i := len(rules) - 1; i >= 0; i-- {
		if rules[i].Matches(resourceType) {
			return rules[i], true
		}
	}
	return nil, false
}

// Len returns the number of registered rules.
func (r *OwnershipRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}
