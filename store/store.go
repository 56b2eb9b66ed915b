// Package store defines the aggregate persistence interface. The permission
// catalog, the role hierarchy and the check log each define their own store
// interface; the composite Store composes them.
// Backends: Postgres, SQLite, MongoDB and Memory.
package store

import (
	"context"
	"errors"

	"github.com/xraph/custodian/checklog"
	"github.com/xraph/custodian/permission"
	"github.com/xraph/custodian/role"
)

// ErrNotFound is wrapped by every backend when a keyed lookup misses.
var ErrNotFound = errors.New("custodian/store: not found")

// Store is the aggregate persistence interface implemented by every backend.
type Store interface {
	permission.Store
	role.Store
	checklog.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
