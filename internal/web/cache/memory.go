package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache implements an in-memory cache with TTL support
type MemoryCache struct {
	data   sync.Map
	config Config
	now    func() time.Time
	cancel context.CancelFunc
}

type item struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates an in-memory cache and starts its expiry sweeper
func NewMemoryCache(config Config) *MemoryCache {
	ctx, cancel := context.WithCancel(context.Background())
	mc := &MemoryCache{
		config: config,
		now:    time.Now,
		cancel: cancel,
	}

	go mc.sweep(ctx)

	return mc
}

// Get retrieves a value from the cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullKey := m.config.Prefix + key
	value, ok := m.data.Load(fullKey)
	if !ok {
		return nil, ErrMiss
	}

	it := value.(item)
	if m.expired(it) {
		m.data.Delete(fullKey)
		return nil, ErrMiss
	}
	return it.value, nil
}

// Set stores a value in the cache with a TTL
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	it := item{value: value}
	if ttl > 0 {
		it.expiration = m.now().Add(ttl)
	}

	m.data.Store(m.config.Prefix+key, it)
	return nil
}

// Delete removes a value from the cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data.Delete(m.config.Prefix + key)
	return nil
}

// Close stops the background sweeper
func (m *MemoryCache) Close() error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

func (m *MemoryCache) expired(it item) bool {
	return !it.expiration.IsZero() && m.now().After(it.expiration)
}

func (m *MemoryCache) sweep(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.data.Range(func(key, value interface{}) bool {
				if m.expired(value.(item)) {
					m.data.Delete(key)
				}
				return true
			})
		}
	}
}
