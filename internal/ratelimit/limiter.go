// Package ratelimit provides a keyed token bucket used to slow down
// password guessing against the console login endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"peergate.dev/peergate/internal/clock"
)

// Limiter tracks independent request budgets per key. Keys are
// typically client IPs.
type Limiter struct {
	buckets map[string]*bucket
	clk     clock.Clock
	mu      sync.Mutex
}

// bucket is a fixed-window token bucket. Tokens refill all at once
// when the interval has fully elapsed.
type bucket struct {
	tokens   int
	limit    int
	interval time.Duration
	lastFill time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		clk:     clock.RealClock{},
	}
}

// Allow reports whether a request for key fits within limit requests
// per interval. The first call for a key starts its window.
func (l *Limiter) Allow(key string, limit int, interval time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			tokens:   limit,
			limit:    limit,
			interval: interval,
			lastFill: now,
		}
		l.buckets[key] = b
	}

	if now.Sub(b.lastFill) >= b.interval {
		b.tokens = b.limit
		b.lastFill = now
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// Reset clears the budget for a key. Called after a successful login
// so earlier failures stop counting against the client.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// CleanupExpired removes buckets that have not been touched for maxAge.
func (l *Limiter) CleanupExpired(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	for key, b := range l.buckets {
		if now.Sub(b.lastFill) > maxAge {
			delete(l.buckets, key)
		}
	}
}

// StartCleanup prunes idle buckets in the background until the context
// is cancelled.
func (l *Limiter) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.CleanupExpired(maxAge)
			}
		}
	}()
}
