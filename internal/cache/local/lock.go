// Package local provides in-process stand-ins for the Redis-backed lock
// manager, rate limiter and signal bus. They are used when Redis is not
// configured and hold for a single process only.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// LockManager implements domain.LockManager with a mutex-guarded map of
// held keys. An expired key counts as free even if its holder never
// released it.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]lease
	now   func() time.Time
	count uint64
}

type lease struct {
	id        uint64
	expiresAt time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{
		held: make(map[string]lease),
		now:  time.Now,
	}
}

// Acquire takes key for ttl. A key held by someone else yields an error
// wrapping domain.ErrLockHeld. The returned unlock is idempotent and only
// releases this caller's lease.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	if l, ok := lm.held[key]; ok && now.Before(l.expiresAt) {
		return nil, fmt.Errorf("local: acquire lock %s: %w", key, domain.ErrLockHeld)
	}

	lm.count++
	mine := lease{id: lm.count, expiresAt: now.Add(ttl)}
	lm.held[key] = mine

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if cur, ok := lm.held[key]; ok && cur.id == mine.id {
				delete(lm.held, key)
			}
		})
	}, nil
}

// Cleanup removes expired leases. The app calls it periodically so the map
// does not grow with every operator that ever submitted.
func (lm *LockManager) Cleanup() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	for key, l := range lm.held {
		if !now.Before(l.expiresAt) {
			delete(lm.held, key)
		}
	}
}

var _ domain.LockManager = (*LockManager)(nil)
