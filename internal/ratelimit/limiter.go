// Package ratelimit throttles location submissions per network origin.
package ratelimit

import (
	"context"
	"time"
)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Unlimited admits everything. Used when rate limiting is disabled.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true, Remaining: -1}, nil
}

// refillInterval spreads capacity evenly across the window: a bucket that
// is drained recovers one token every window/capacity.
func refillInterval(capacity int, window time.Duration) time.Duration {
	if capacity <= 0 || window <= 0 {
		return 0
	}
	interval := window / time.Duration(capacity)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return interval
}
