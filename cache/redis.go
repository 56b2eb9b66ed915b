package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/custodian"
)

var _ custodian.Cache = (*Redis)(nil)

// Redis is a role resolution cache that several engines can point at.
// The engine keys entries by a fingerprint of the policy that produced
// them, so engines only share entries while their policies are identical.
// Keys are further namespaced by a version counter stored in Redis, and
// Purge increments it. Engines do not pick up each other's registry
// changes; call Engine.Reload for that.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures the Redis cache.
type RedisOption func(*Redis)

// WithRedisPrefix sets the key namespace. Defaults to "custodian".
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithRedisTTL sets the entry time-to-live. Defaults to five minutes.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// NewRedis creates a Redis-backed cache.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: "custodian", ttl: 5 * time.Minute}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) versionKey() string { return r.prefix + ":version" }

// version returns the current namespace version. Redis errors surface so
// callers treat them as misses.
func (r *Redis) version(ctx context.Context) (int64, error) {
	ver, err := r.client.Get(ctx, r.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func (r *Redis) key(ver int64, key string) string {
	return fmt.Sprintf("%s:%d:%s", r.prefix, ver, key)
}

// Get returns a cached value. Any Redis error is reported as a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]string, bool) {
	ver, err := r.version(ctx)
	if err != nil {
		return nil, false
	}
	payload, err := r.client.Get(ctx, r.key(ver, key)).Bytes()
	if err != nil {
		return nil, false
	}
	var out []string
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, false
	}
	return out, true
}

// Set stores a value. Write failures are ignored; the next Get misses.
func (r *Redis) Set(ctx context.Context, key string, value []string) {
	ver, err := r.version(ctx)
	if err != nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, r.key(ver, key), raw, r.ttl).Err()
}

// Purge invalidates every entry by moving to a new namespace version.
// Entries under the old version expire through their TTL.
func (r *Redis) Purge(ctx context.Context) {
	_ = r.client.Incr(ctx, r.versionKey()).Err()
}
