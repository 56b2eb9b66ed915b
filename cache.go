package custodian

import "context"

// Cache stores resolved role data: inherited role lists and effective
// permission sets. Keys embed the engine's policy generation, so entries
// written before a policy change are never read after it.
type Cache interface {
	// Get returns a cached value, if available.
	Get(ctx context.Context, key string) ([]string, bool)

	// Set stores a value. Callers must not mutate value afterwards.
	Set(ctx context.Context, key string, value []string)

	// Purge removes all entries.
	Purge(ctx context.Context)
}
