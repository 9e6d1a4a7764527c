package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a shared Redis instance, for deployments
// running more than one replica of a service where the token cache or RPC
// dedup map must be visible cluster-wide, deduplicating against a real
// redis.Client rather than an in-process map.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing *redis.Client. prefix namespaces keys so
// several caches (token cache, dedup-by-correlation, dedup-by-hash) can
// share one Redis instance without collisions.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), value, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Sweep is a no-op for Redis: keys carry their own TTL and Redis evicts
// them itself. It is kept so the scheduler can still register a "sweep"
// task uniformly across backends, matching spec §4.8's task list, without
// branching on which Store implementation is active.
func (r *Redis) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
