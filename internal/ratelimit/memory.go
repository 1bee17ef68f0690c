package ratelimit

import (
	"context"
	"sync"
	"time"

	"bustrack/internal/config"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// MemoryLimiter is the single-process token bucket used with the memory
// database driver. It applies the same refill rule as RedisLimiter.
// Buckets idle for a full window are refilled by definition and are
// dropped on the next sweep.
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	capacity  int
	interval  time.Duration
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryLimiter(cfg config.RateLimitConfig) *MemoryLimiter {
	return &MemoryLimiter{
		buckets:  make(map[string]*bucket),
		capacity: cfg.Capacity,
		interval: refillInterval(cfg.Capacity, cfg.Window),
		window:   cfg.Window,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) sweep(now time.Time) {
	if l.window <= 0 {
		return
	}
	if l.lastSweep.IsZero() {
		l.lastSweep = now
		return
	}
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastRefill) >= l.window {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity, lastRefill: now}
		l.buckets[key] = b
	}

	if l.interval > 0 {
		if intervals := int(now.Sub(b.lastRefill) / l.interval); intervals > 0 {
			b.tokens = min(l.capacity, b.tokens+intervals)
			b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * l.interval)
		}
	}

	if b.tokens > 0 {
		b.tokens--
		return Decision{Allowed: true, Remaining: b.tokens}, nil
	}

	retry := l.interval - now.Sub(b.lastRefill)
	if retry < 0 {
		retry = 0
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}
