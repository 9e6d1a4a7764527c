// Package cache provides the single TTL-cache abstraction shared by the
// Token Cache & Auth Gate (C5), the RPC dedup maps (C2), and the driver
// analytics cache (§4.15). Spec §5 requires each of these caches be
// protected by a single mutex with linearizable read-miss-then-insert —
// the in-memory implementation here is that mutex; the Redis-backed
// implementation behind the same interface is for horizontally scaled
// deployments where dedup/token state must be shared across replicas.
package cache

import (
	"context"
	"time"
)

// Store is a TTL key-value cache. Values are opaque byte payloads; callers
// own their own (de)serialization so the same Store backs both string
// payloads (cached RPC responses) and marshalled structs (principals).
type Store interface {
	// Get returns the cached value and true, or nil and false on miss or
	// expiry. Expired entries are evicted lazily on read (spec §4.5).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set inserts or replaces key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent inserts key only if not already present, returning
	// whether the insert happened. The RPC dedup layer does not call it;
	// its sharing of in-flight duplicate responses uses a process-local
	// waiter map.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (inserted bool, err error)

	// Delete removes key if present.
	Delete(ctx context.Context, key string) error

	// Sweep evicts all expired entries and returns how many were removed.
	// Exposed so the scheduler (C8) can run it as a named periodic task
	// uniformly across backends; backends whose TTLs already self-expire
	// (Redis) evict nothing here and report 0.
	Sweep(ctx context.Context) (evicted int, err error)

	// Close releases any resources held by the store.
	Close() error
}
