package custodian

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAccessDenied matches every DenialError regardless of kind.
	ErrAccessDenied = errors.New("custodian: access denied")

	// ErrAuthenticationRequired is returned when no principal is supplied to a gate.
	ErrAuthenticationRequired = errors.New("custodian: authentication required")

	// ErrInsufficientPermissions is returned when rule evaluation denies access.
	ErrInsufficientPermissions = errors.New("custodian: insufficient permissions")

	// ErrUnknownPermission is reported when a permission has no catalog entry.
	ErrUnknownPermission = errors.New("custodian: unknown permission")

	// ErrResourceLoadFailed wraps a resource loader failure.
	ErrResourceLoadFailed = errors.New("custodian: resource load failed")

	// ErrAuditSinkFailed wraps an audit sink failure.
	ErrAuditSinkFailed = errors.New("custodian: audit sink failed")

	// ErrAuthorizationCheckFailed is returned when evaluation itself fails.
	// It is distinct from a deny.
	ErrAuthorizationCheckFailed = errors.New("custodian: authorization check failed")

	// ErrInvalidPermission is returned when a permission name is malformed.
	ErrInvalidPermission = errors.New("custodian: invalid permission name")

	// ErrInvalidRole is returned when a role name is empty.
	ErrInvalidRole = errors.New("custodian: invalid role name")

	// ErrCyclicRoleInheritance is returned when strict hierarchy mode rejects
	// an update that would create a cycle.
	ErrCyclicRoleInheritance = errors.New("custodian: cyclic role inheritance detected")

	// ErrPermissionNotFound is returned when a permission cannot be found.
	ErrPermissionNotFound = errors.New("custodian: permission not found")

	// ErrHierarchyNotFound is returned when a role has no hierarchy entry.
	ErrHierarchyNotFound = errors.New("custodian: role hierarchy entry not found")

	// ErrCheckLogNotFound is returned when a check log entry cannot be found.
	ErrCheckLogNotFound = errors.New("custodian: check log not found")
)

// DenialKind classifies a structured denial.
type DenialKind string

const (
	DenialAuthenticationRequired  DenialKind = "AUTHENTICATION_REQUIRED"
	DenialInsufficientPermissions DenialKind = "INSUFFICIENT_PERMISSIONS"
)

// DenialError is the structured deny a gate surfaces to its caller.
type DenialError struct {
	Kind     DenialKind `json:"kind"`
	Required []string   `json:"required,omitempty"`
	Role     string     `json:"role,omitempty"`
	Reason   string     `json:"reason,omitempty"`
}

func (e *DenialError) Error() string {
	switch e.Kind {
	case DenialAuthenticationRequired:
		return ErrAuthenticationRequired.Error()
	default:
		msg := fmt.Sprintf("%s: role %q lacks [%s]", ErrInsufficientPermissions.Error(), e.Role, strings.Join(e.Required, ", "))
		if e.Reason != "" {
			msg += " (" + e.Reason + ")"
		}
		return msg
	}
}

// Is reports whether target is ErrAccessDenied or the sentinel for e's kind.
func (e *DenialError) Is(target error) bool {
	switch target {
	case ErrAccessDenied:
		return true
	case ErrAuthenticationRequired:
		return e.Kind == DenialAuthenticationRequired
	case ErrInsufficientPermissions:
		return e.Kind == DenialInsufficientPermissions
	}
	return false
}
