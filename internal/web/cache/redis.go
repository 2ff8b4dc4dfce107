package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores entries in redis under the configured prefix so several
// instances share resolved state
type RedisCache struct {
	client *redis.Client
	config Config
}

// NewRedisCache wraps an existing client. The client stays owned by the caller.
func NewRedisCache(client *redis.Client, config Config) *RedisCache {
	return &RedisCache{client: client, config: config}
}

func (r *RedisCache) key(k string) string {
	return r.config.Prefix + k
}

// Get returns ErrMiss for absent or expired keys
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return value, err
}

// Set stores value. A zero ttl uses the default and a negative ttl never expires.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	switch {
	case ttl == 0:
		ttl = r.config.DefaultTTL
	case ttl < 0:
		// redis reads a zero expiration as "persist"
		ttl = 0
	}
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

// Delete removes key. Deleting an absent key is not an error.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}
