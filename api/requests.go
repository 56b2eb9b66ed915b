package api

// ──────────────────────────────────────────────────
// Shared inputs
// ──────────────────────────────────────────────────

// UserInput describes the principal a check is evaluated for.
type UserInput struct {
	ID         string         `json:"id" description:"User identifier"`
	Role       string         `json:"role" description:"Primary role"`
	Roles      []string       `json:"roles,omitempty" description:"Additional roles"`
	Attributes map[string]any `json:"attributes,omitempty" description:"User attributes for ownership rules"`
}

// ResourceInput describes the resource a check targets.
type ResourceInput struct {
	Type       string         `json:"type" description:"Resource type tag (e.g. leaves)"`
	ID         string         `json:"id,omitempty" description:"Resource identifier"`
	Attributes map[string]any `json:"attributes,omitempty" description:"Resource fields for ownership rules (e.g. employeeId)"`
}

// ──────────────────────────────────────────────────
// Check requests
// ──────────────────────────────────────────────────

// CheckRequest is the request body for a gate decision.
type CheckRequest struct {
	User           *UserInput     `json:"user" description:"Principal; omit to evaluate an unauthenticated request"`
	Permissions    []string       `json:"permissions" description:"Required permissions"`
	RequireAll     bool           `json:"require_all,omitempty" description:"Require every permission instead of any"`
	AllowOwnership bool           `json:"allow_ownership,omitempty" description:"Grant access to the resource owner on deny"`
	Resource       *ResourceInput `json:"resource,omitempty" description:"Target resource"`
	Path           string         `json:"path,omitempty" description:"Invocation path recorded in the audit log"`
}

// CanRequest is the request body for an action check.
type CanRequest struct {
	User      *UserInput       `json:"user" description:"Principal"`
	Action    string           `json:"action" description:"Permission name without the _own suffix"`
	Resource  *ResourceInput   `json:"resource,omitempty" description:"Target resource"`
	Resources []*ResourceInput `json:"resources,omitempty" description:"Resources to filter by the action"`
}

// EffectiveRequest is the request body for listing a user's permissions.
type EffectiveRequest struct {
	User *UserInput `json:"user" description:"Principal"`
}

// ──────────────────────────────────────────────────
// Permission requests
// ──────────────────────────────────────────────────

// PutPermissionRequest is the body for creating or replacing a permission.
type PutPermissionRequest struct {
	Roles       []string `json:"roles" description:"Roles directly granted the permission; replaces the existing set"`
	Description string   `json:"description,omitempty" description:"Human-readable description"`
}

// GetPermissionRequest is the path parameter for a permission.
type GetPermissionRequest struct {
	Name string `path:"name" description:"Permission name (e.g. leaves.view)"`
}

// ListPermissionsRequest holds query parameters.
type ListPermissionsRequest struct {
	Role   string `query:"role" description:"Filter by directly granted role"`
	Prefix string `query:"prefix" description:"Filter by resource prefix (e.g. leaves)"`
	Search string `query:"search" description:"Search by name"`
	Limit  int    `query:"limit" description:"Maximum results"`
	Offset int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Hierarchy requests
// ──────────────────────────────────────────────────

// PutHierarchyRequest is the body for replacing a role's inherited roles.
type PutHierarchyRequest struct {
	Inherits []string `json:"inherits" description:"Roles whose permissions the role receives"`
}

// GetHierarchyRequest is the path parameter for a role.
type GetHierarchyRequest struct {
	Role string `path:"role" description:"Role name"`
}

// ListHierarchyRequest holds query parameters.
type ListHierarchyRequest struct{}

// ──────────────────────────────────────────────────
// Check log requests
// ──────────────────────────────────────────────────

// ListCheckLogsRequest holds query parameters for querying check logs.
type ListCheckLogsRequest struct {
	TenantID    string `query:"tenant_id" description:"Filter by tenant"`
	SubjectID   string `query:"subject_id" description:"Filter by user ID"`
	SubjectRole string `query:"subject_role" description:"Filter by user role"`
	Path        string `query:"path" description:"Filter by invocation path"`
	Decision    string `query:"decision" description:"Filter by decision"`
	Granted     string `query:"granted" description:"Filter by outcome (true/false)"`
	After       string `query:"after" description:"After timestamp (RFC3339)"`
	Before      string `query:"before" description:"Before timestamp (RFC3339)"`
	Limit       int    `query:"limit" description:"Maximum results"`
	Offset      int    `query:"offset" description:"Results to skip"`
}

// GetCheckLogRequest is the path parameter for a check log entry.
type GetCheckLogRequest struct {
	LogID string `path:"logId" description:"Check log ID"`
}

// PurgeCheckLogsRequest holds query parameters for deleting check logs.
type PurgeCheckLogsRequest struct {
	Before   string `query:"before" description:"Delete entries older than this timestamp (RFC3339)"`
	TenantID string `query:"tenant_id" description:"Delete every entry of this tenant"`
}
