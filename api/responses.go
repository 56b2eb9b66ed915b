package api

import "github.com/xraph/custodian"

// CheckResponse is the response for a gate decision.
type CheckResponse struct {
	Allowed           bool                   `json:"allowed" description:"Whether the request is allowed"`
	Decision          string                 `json:"decision" description:"Decision code"`
	Reason            string                 `json:"reason,omitempty" description:"Human-readable reason"`
	Results           []PermissionResult     `json:"results,omitempty" description:"Per-permission results in request order"`
	OwnershipOverride bool                   `json:"ownership_override,omitempty" description:"Whether ownership granted access"`
	Denial            *custodian.DenialError `json:"denial,omitempty" description:"Structured denial"`
	EvalTimeNs        int64                  `json:"eval_time_ns" description:"Evaluation time in nanoseconds"`
}

// PermissionResult is the outcome for one permission.
type PermissionResult struct {
	Permission  string `json:"permission" description:"Permission name"`
	Allowed     bool   `json:"allowed" description:"Whether the permission is held"`
	Decision    string `json:"decision" description:"Decision code"`
	Source      string `json:"source,omitempty" description:"Grant source (direct, inherited, ownership)"`
	MatchedRole string `json:"matched_role,omitempty" description:"Role that granted the permission"`
}

// CanResponse is the response for an action check.
type CanResponse struct {
	Allowed   bool                  `json:"allowed" description:"Whether the action is allowed on the resource"`
	Resources []*custodian.Resource `json:"resources,omitempty" description:"Accessible resources, in request order"`
}

// EffectiveResponse lists a user's effective permissions.
type EffectiveResponse struct {
	Roles       []string `json:"roles" description:"Roles held"`
	Permissions []string `json:"permissions" description:"Sorted effective permissions"`
}

// HierarchyEntry describes one role's inheritance.
type HierarchyEntry struct {
	Role        string   `json:"role" description:"Role name"`
	Inherits    []string `json:"inherits" description:"Directly inherited roles"`
	Resolved    []string `json:"resolved,omitempty" description:"Every inherited role after walking the hierarchy"`
	Permissions []string `json:"permissions,omitempty" description:"Effective permissions of the role"`
}

// PurgeResponse reports how many check logs were deleted.
type PurgeResponse struct {
	Deleted int64 `json:"deleted" description:"Number of deleted entries (-1 when unknown)"`
}

// ListResponse wraps a list of items with pagination metadata.
type ListResponse[T any] struct {
	Items  []T   `json:"items" description:"List of items"`
	Total  int64 `json:"total" description:"Total count"`
	Limit  int   `json:"limit" description:"Page size"`
	Offset int   `json:"offset" description:"Page offset"`
}
