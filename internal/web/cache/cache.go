// Package cache provides the byte-oriented cache used for resolved account
// state, with a redis backend and an in-process fallback.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value, returning ErrMiss when absent or expired
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL; zero uses the backend default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value
	Delete(ctx context.Context, key string) error
}

// Config holds common configuration for cache backends
type Config struct {
	DefaultTTL time.Duration
	Prefix     string
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "fieldledger:",
	}
}

// ErrMiss is returned when a key is not in the cache
var ErrMiss = errors.New("cache miss")

// IsMiss checks if an error is a cache miss
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}

// GetJSON loads key into dst. It reports false on a miss.
func GetJSON(ctx context.Context, c Cache, key string, dst interface{}) (bool, error) {
	raw, err := c.Get(ctx, key)
	if IsMiss(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key as JSON
func SetJSON(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}
