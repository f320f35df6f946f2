package local

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// RateLimiter implements domain.RateLimiter with one token bucket per key.
// A limit of n per window becomes a bucket refilling at n/window with a
// burst of n, which admits the same steady-state rate as the Redis sliding
// window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	limit    int
	window   time.Duration
	lastSeen time.Time
}

// NewRateLimiter creates an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket)}
}

// Allow reports whether one more request for key is permitted.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok || b.limit != limit || b.window != window {
		b = &bucket{
			lim:    rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), limit),
			limit:  limit,
			window: window,
		}
		rl.buckets[key] = b
	}
	now := time.Now()
	b.lastSeen = now
	rl.mu.Unlock()

	return b.lim.AllowN(now, 1), nil
}

// Cleanup drops buckets idle for longer than idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
