package match

import (
	"sync"
	"time"
)

// LockMap is a named lock table with expiry. Locks guard multi-step match
// operations (escrow lock-in, settlement) against concurrent re-entry; the
// TTL guarantees a crashed holder cannot wedge a room forever.
type LockMap struct {
	mu    sync.Mutex
	locks map[string]time.Time
	now   func() time.Time
}

// NewLockMap creates an empty lock table.
func NewLockMap() *LockMap {
	return &LockMap{locks: make(map[string]time.Time), now: time.Now}
}

// WithClock overrides the lock clock. Test helper.
func (l *LockMap) WithClock(now func() time.Time) *LockMap {
	l.now = now
	return l
}

// Acquire takes the named lock for ttl. Returns false while a live holder
// exists; expired locks are taken over.
func (l *LockMap) Acquire(name string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if expiry, held := l.locks[name]; held && now.Before(expiry) {
		return false
	}
	l.locks[name] = now.Add(ttl)
	return true
}

// Release frees the named lock.
func (l *LockMap) Release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, name)
}
