package role

import "context"

// Store defines persistence operations for the role hierarchy.
type Store interface {
	// PutInheritance creates or replaces the entry for h.Role.
	PutInheritance(ctx context.Context, h *Inheritance) error

	// GetInheritance retrieves the entry for a role.
	GetInheritance(ctx context.Context, role string) (*Inheritance, error)

	// DeleteInheritance removes the entry for a role.
	DeleteInheritance(ctx context.Context, role string) error

	// ListInheritances returns entries matching the filter, ordered by role.
	ListInheritances(ctx context.Context, filter *ListFilter) ([]*Inheritance, error)
}
