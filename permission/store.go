package permission

import "context"

// Store defines persistence operations for the permission catalog.
type Store interface {
	// PutPermission creates or replaces the entry with p.Name.
	PutPermission(ctx context.Context, p *Permission) error

	// GetPermission retrieves an entry by permission name.
	GetPermission(ctx context.Context, name string) (*Permission, error)

	// DeletePermission removes an entry by permission name.
	DeletePermission(ctx context.Context, name string) error

	// ListPermissions returns entries matching the filter, ordered by name.
	ListPermissions(ctx context.Context, filter *ListFilter) ([]*Permission, error)

	// CountPermissions returns the number of entries matching the filter.
	CountPermissions(ctx context.Context, filter *ListFilter) (int64, error)
}
