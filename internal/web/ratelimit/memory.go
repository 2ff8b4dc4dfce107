package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryConfig configures the in-process limiter. Limit requests are allowed
// per Window, refilled continuously.
type MemoryConfig struct {
	Limit           int
	Window          time.Duration
	CleanupInterval time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps a token bucket per key
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	every   rate.Limit
	window  time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter(cfg MemoryConfig) (*MemoryLimiter, error) {
	if cfg.Limit <= 0 {
		return nil, errors.New("limit must be greater than 0")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be greater than 0")
	}
	l := &MemoryLimiter{
		entries: make(map[string]*entry),
		limit:   cfg.Limit,
		every:   rate.Every(cfg.Window / time.Duration(cfg.Limit)),
		window:  cfg.Window,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go l.cleanupLoop(cfg.CleanupInterval)
	}
	return l, nil
}

// Allow takes a token for key
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (*Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.every, l.limit)}
		l.entries[key] = e
	}
	e.lastSeen = now

	allowed := e.limiter.AllowN(now, 1)
	remaining := int(e.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}

	resetAt := now
	if missing := l.limit - remaining; missing > 0 {
		resetAt = now.Add(time.Duration(float64(missing) / float64(l.every) * float64(time.Second)))
	}

	return &Info{
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
		Allowed:   allowed,
	}, nil
}

func (l *MemoryLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

// sweep drops keys idle for longer than two windows
func (l *MemoryLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-2 * l.window)
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// Len returns the number of tracked keys
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the cleanup goroutine
func (l *MemoryLimiter) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}
