package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// LockManager is a process-local run lock. Expired locks may be taken over.
type LockManager struct {
	mu   sync.Mutex
	held map[string]lease
	now  func() time.Time
	seq  uint64
}

type lease struct {
	id      uint64
	expires time.Time
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]lease), now: time.Now}
}

// Acquire takes the lock for key or returns domain.ErrLockHeld. A
// non-positive ttl never expires.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	if l, ok := lm.held[key]; ok && (l.expires.IsZero() || now.Before(l.expires)) {
		return nil, domain.ErrLockHeld
	}
	lm.seq++
	l := lease{id: lm.seq}
	if ttl > 0 {
		l.expires = now.Add(ttl)
	}
	lm.held[key] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			if cur, ok := lm.held[key]; ok && cur.id == l.id {
				delete(lm.held, key)
			}
			lm.mu.Unlock()
		})
	}, nil
}
