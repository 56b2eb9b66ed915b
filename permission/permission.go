// Package permission defines the persisted permission catalog entry and its
// store interface.
package permission

import (
	"time"

	"github.com/xraph/custodian/id"
)

// Permission is one catalog entry: a permission name and the set of roles
// that directly hold it. Name is the natural key; writes replace the role set
// wholesale.
type Permission struct {
	ID          id.PermissionID `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description,omitempty" db:"description"`
	Roles       []string        `json:"roles" db:"roles"`
	IsSystem    bool            `json:"is_system" db:"is_system"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// HasRole reports whether role directly holds this permission.
func (p *Permission) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ListFilter contains filters for listing permissions.
type ListFilter struct {
	// Role restricts results to entries directly granted to this role.
	Role string `json:"role,omitempty"`
	// Prefix restricts results to names starting with it, e.g. "leaves.".
	Prefix   string `json:"prefix,omitempty"`
	IsSystem *bool  `json:"is_system,omitempty"`
	Search   string `json:"search,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
