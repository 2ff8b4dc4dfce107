// Package ratelimit limits request rates per key. The redis limiter is shared
// across instances; the memory limiter serves single-process deployments.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (*Info, error)
}

// Info describes the limiter state after a decision
type Info struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Allowed   bool
}

// RetryAfter returns whole seconds until the window resets, at least one
func (i *Info) RetryAfter(now time.Time) int {
	secs := int(i.ResetAt.Sub(now).Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
