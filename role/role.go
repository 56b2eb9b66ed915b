// Package role defines the persisted role hierarchy entry and its store
// interface.
package role

import (
	"time"

	"github.com/xraph/custodian/id"
)

// Inheritance records that Role inherits every permission held by the roles
// in Inherits. Role is the natural key; writes replace Inherits wholesale.
type Inheritance struct {
	ID        id.HierarchyID `json:"id" db:"id"`
	Role      string         `json:"role" db:"role"`
	Inherits  []string       `json:"inherits" db:"inherits"`
	IsSystem  bool           `json:"is_system" db:"is_system"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// InheritsFrom reports whether parent is listed directly in Inherits.
func (h *Inheritance) InheritsFrom(parent string) bool {
	for _, r := range h.Inherits {
		if r == parent {
			return true
		}
	}
	return false
}

// ListFilter contains filters for listing hierarchy entries.
type ListFilter struct {
	// Inherits restricts results to roles that directly inherit from this role.
	Inherits string `json:"inherits,omitempty"`
	IsSystem *bool  `json:"is_system,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
