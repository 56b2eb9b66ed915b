package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/custodian"
)

func newRedisCache(t *testing.T, opts ...RedisOption) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, opts...), mr
}

func TestRedisCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCache(t)

	if _, ok := c.Get(ctx, "perms:1:manager"); ok {
		t.Fatal("expected cache miss")
	}
	c.Set(ctx, "perms:1:manager", []string{"leaves.approve", "leaves.view"})

	got, ok := c.Get(ctx, "perms:1:manager")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[1] != "leaves.view" {
		t.Fatalf("unexpected value %v", got)
	}
}

func TestRedisCachePurgeIsShared(t *testing.T) {
	ctx := context.Background()
	a, mr := newRedisCache(t, WithRedisPrefix("hr"))
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = other.Close() })
	b := NewRedis(other, WithRedisPrefix("hr"))

	a.Set(ctx, "anc:1:admin", []string{"manager", "employee"})
	if _, ok := b.Get(ctx, "anc:1:admin"); !ok {
		t.Fatal("entries should be visible to every client of the namespace")
	}

	b.Purge(ctx)
	if _, ok := a.Get(ctx, "anc:1:admin"); ok {
		t.Fatal("purge from one client should invalidate the others")
	}
}

func TestRedisCacheTTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedisCache(t, WithRedisTTL(time.Minute))

	c.Set(ctx, "perms:1:employee", []string{"leaves.create"})
	mr.FastForward(2 * time.Minute)

	if _, ok := c.Get(ctx, "perms:1:employee"); ok {
		t.Fatal("expected cache miss after TTL expiry")
	}
}

func TestRedisCacheWithEngine(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedisCache(t)
	eng, err := custodian.NewEngine(custodian.WithCache(c))
	if err != nil {
		t.Fatal(err)
	}

	before := eng.RolePermissions(ctx, custodian.RoleEmployee)
	if _, err := eng.AddPermission(ctx, "reports.view", []string{custodian.RoleEmployee}); err != nil {
		t.Fatal(err)
	}
	after := eng.RolePermissions(ctx, custodian.RoleEmployee)
	if len(after) != len(before)+1 {
		t.Fatalf("expected refreshed set after a policy change: before %v, after %v", before, after)
	}
}

func TestRedisCacheEnginesWithDivergentPolicies(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	newEngine := func() *custodian.Engine {
		t.Helper()
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		eng, err := custodian.NewEngine(custodian.WithCache(NewRedis(client)))
		if err != nil {
			t.Fatal(err)
		}
		return eng
	}
	a, b := newEngine(), newEngine()
	manager := &custodian.User{ID: "u1", Role: custodian.RoleManager}

	if _, err := a.UpdateRoleHierarchy(ctx, custodian.RoleManager, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := b.AddPermission(ctx, "reports.view", []string{custodian.RoleAdmin}); err != nil {
		t.Fatal(err)
	}

	if !b.HasPermission(ctx, manager, "leaves.create", nil) {
		t.Fatal("b: manager still inherits employee")
	}
	if a.HasPermission(ctx, manager, "leaves.create", nil) {
		t.Fatal("a: manager no longer inherits employee, cached entry from b leaked")
	}
	for _, p := range a.RolePermissions(ctx, custodian.RoleManager) {
		if p == "leaves.create" {
			t.Fatalf("a: unexpected inherited permission in %v", a.RolePermissions(ctx, custodian.RoleManager))
		}
	}
}

func TestRedisCacheEnginesWithSamePolicyShareEntries(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a, err := custodian.NewEngine(custodian.WithCache(NewRedis(client)))
	if err != nil {
		t.Fatal(err)
	}
	b, err := custodian.NewEngine(custodian.WithCache(NewRedis(client)))
	if err != nil {
		t.Fatal(err)
	}

	want := a.RolePermissions(ctx, custodian.RoleAdmin)
	keys := len(mr.Keys())
	if keys == 0 {
		t.Fatal("expected entries to be written")
	}

	got := b.RolePermissions(ctx, custodian.RoleAdmin)
	if len(got) != len(want) {
		t.Fatalf("got %d permissions, want %d", len(got), len(want))
	}
	if len(mr.Keys()) != keys {
		t.Fatalf("identical policies should reuse entries: %d keys, want %d", len(mr.Keys()), keys)
	}
}
