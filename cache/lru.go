package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xraph/custodian"
)

var _ custodian.Cache = (*LRU)(nil)

// LRU is a bounded least-recently-used cache whose entries also expire
// after a TTL. Unlike Memory it evicts by recency, which suits engines
// serving many distinct roles.
type LRU struct {
	inner *lru.LRU[string, []string]
}

// NewLRU creates an LRU cache holding at most size entries for ttl each.
// A size below 1 defaults to 1024; a zero ttl disables expiry.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size < 1 {
		size = 1024
	}
	return &LRU{inner: lru.NewLRU[string, []string](size, nil, ttl)}
}

// Get returns a cached value.
func (c *LRU) Get(_ context.Context, key string) ([]string, bool) {
	return c.inner.Get(key)
}

// Set stores a value, evicting the least recently used entry when full.
func (c *LRU) Set(_ context.Context, key string, value []string) {
	c.inner.Add(key, value)
}

// Purge removes all entries.
func (c *LRU) Purge(_ context.Context) {
	c.inner.Purge()
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	return c.inner.Len()
}
