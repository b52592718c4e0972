package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Cache is the thin status-cache surface handlers depend on, so tests can
// swap in a map-backed fake.
type Cache struct{ R *redis.Client }

func (c Cache) Get(ctx context.Context, key string) (string, error) {
	return c.R.Get(ctx, key).Result()
}

func (c Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.R.Set(ctx, key, value, ttl).Err()
}

// Marker implements once-only marks (dedup keys, low-stock alert latches).
type Marker struct{ R *redis.Client }

// MarkOnce sets key if absent and reports whether this call claimed it.
func (m Marker) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return m.R.SetNX(ctx, key, "1", ttl).Result()
}

func (m Marker) Clear(ctx context.Context, key string) error {
	return m.R.Del(ctx, key).Err()
}
