package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/xraph/custodian"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(2, time.Minute)

	c.Set(ctx, "perms:1:admin", []string{"users.view"})
	c.Set(ctx, "perms:1:manager", []string{"leaves.view"})

	// Touch admin so manager becomes the eviction candidate.
	if _, ok := c.Get(ctx, "perms:1:admin"); !ok {
		t.Fatal("expected cache hit")
	}
	c.Set(ctx, "perms:1:employee", []string{"leaves.create"})

	if _, ok := c.Get(ctx, "perms:1:manager"); ok {
		t.Fatal("least recently used entry should be evicted")
	}
	if _, ok := c.Get(ctx, "perms:1:admin"); !ok {
		t.Fatal("recently used entry should be kept")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestLRUCacheTTLAndPurge(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(0, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		c.Set(ctx, fmt.Sprintf("anc:1:role%d", i), []string{"employee"})
	}
	c.Purge(ctx)
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after purge, got %d", c.Len())
	}

	c.Set(ctx, "anc:1:admin", []string{"manager"})
	time.Sleep(50 * time.Millisecond)
	if _, ok := c.Get(ctx, "anc:1:admin"); ok {
		t.Fatal("expected cache miss after TTL expiry")
	}
}

func TestLRUCacheWithEngine(t *testing.T) {
	ctx := context.Background()
	c := NewLRU(64, time.Minute)
	eng, err := custodian.NewEngine(custodian.WithCache(c))
	if err != nil {
		t.Fatal(err)
	}

	first := eng.RolePermissions(ctx, custodian.RoleAdmin)
	second := eng.RolePermissions(ctx, custodian.RoleAdmin)
	if len(first) != 17 || len(second) != 17 {
		t.Fatalf("expected 17 admin permissions, got %d and %d", len(first), len(second))
	}

	if err := eng.RemovePermission(ctx, "users.delete"); err != nil {
		t.Fatal(err)
	}
	if got := eng.RolePermissions(ctx, custodian.RoleAdmin); len(got) != 16 {
		t.Fatalf("expected 16 admin permissions after removal, got %d", len(got))
	}
}
