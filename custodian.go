// Package custodian provides a role-based authorization policy engine for Go.
//
// Custodian decides whether a verified user may exercise one or more named
// permissions, optionally against a specific resource. Permissions are
// granted to roles directly or through a role hierarchy, and
// ownership-qualified permissions ("<resource>.<action>_own") are resolved
// through per-resource-type ownership rules. A request-scoped Gate combines
// several permissions with ANY or ALL semantics, loads the target resource
// and records every decision to an audit sink.
//
//	eng, err := custodian.NewEngine(
//	    custodian.WithStore(memStore),
//	)
//	ok := eng.HasPermission(ctx, &custodian.User{ID: "u1", Role: "employee"},
//	    "leaves.view_own", &custodian.Resource{Type: "leaves", Attributes: map[string]any{"employeeId": "u1"}})
package custodian

import "fmt"

// User is the verified principal an authorization query is made for.
// Role is the principal's primary role. Roles optionally lists further
// roles held by the same principal; effective permissions are the union
// over all of them.
type User struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Roles      []string       `json:"roles,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// EffectiveRoles returns Role followed by Roles, without blanks or duplicates.
func (u *User) EffectiveRoles() []string {
	if u == nil {
		return nil
	}
	out := make([]string, 0, 1+len(u.Roles))
	seen := make(map[string]struct{}, 1+len(u.Roles))
	add := func(r string) {
		if r == "" {
			return
		}
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	add(u.Role)
	for _, r := range u.Roles {
		add(r)
	}
	return out
}

// Attr returns a field of the user by name. "id" and "role" resolve to
// the struct fields; anything else is looked up in Attributes.
func (u *User) Attr(field string) (any, bool) {
	if u == nil {
		return nil, false
	}
	switch field {
	case "id":
		return u.ID, u.ID != ""
	case "role":
		return u.Role, u.Role != ""
	}
	v, ok := u.Attributes[field]
	return v, ok
}

// Resource is the target of an ownership-qualified check. Type selects
// the ownership rule; the rule inspects ID and Attributes.
type Resource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Attr returns a field of the resource by name. "id" and "type" resolve to
// the struct fields; anything else is looked up in Attributes.
func (r *Resource) Attr(field string) (any, bool) {
	if r == nil {
		return nil, false
	}
	switch field {
	case "id":
		if r.ID != "" {
			return r.ID, true
		}
	case "type":
		return r.Type, r.Type != ""
	}
	v, ok := r.Attributes[field]
	return v, ok
}

func (r *Resource) String() string {
	if r == nil {
		return ""
	}
	if r.ID == "" {
		return r.Type
	}
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}

// Decision is the authorization outcome.
type Decision string

const (
	// DecisionAllow means the request is permitted.
	DecisionAllow Decision = "allow"

	// DecisionDenyUnauthenticated means no principal was supplied.
	DecisionDenyUnauthenticated Decision = "deny_unauthenticated"

	// DecisionDenyUnknownPermission means the permission is not in the catalog.
	DecisionDenyUnknownPermission Decision = "deny_unknown_permission"

	// DecisionDenyNoPerms means no held role grants the required permission.
	DecisionDenyNoPerms Decision = "deny_no_perms"

	// DecisionDenyResourceLoad means the resource could not be loaded and
	// the gate is configured to fail closed.
	DecisionDenyResourceLoad Decision = "deny_resource_load"
)

// GrantSource records which resolution step granted a permission.
type GrantSource string

const (
	// SourceDirect means one of the user's own roles is granted the permission.
	SourceDirect GrantSource = "direct"

	// SourceInherited means a role reached through the hierarchy is granted it.
	SourceInherited GrantSource = "inherited"

	// SourceOwnership means the base permission is held and the user owns
	// the resource.
	SourceOwnership GrantSource = "ownership"
)

// CheckResult is the outcome of a single permission check.
type CheckResult struct {
	Permission  string      `json:"permission"`
	Allowed     bool        `json:"allowed"`
	Decision    Decision    `json:"decision"`
	Source      GrantSource `json:"source,omitempty"`
	MatchedRole string      `json:"matched_role,omitempty"`
	Reason      string      `json:"reason,omitempty"`
	EvalTimeNs  int64       `json:"eval_time_ns"`
}
