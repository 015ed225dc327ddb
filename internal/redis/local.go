package redisclient

import (
	"context"
	"sync"
)

type processSlotLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewProcessSlotLocker returns a Locker with the same fail-fast semantics as the
// Redis locker, scoped to this process. Used when LOCK_BACKEND=local; with more
// than one api-server the store's unique index is the only cross-process guard.
func NewProcessSlotLocker() Locker {
	return &processSlotLocker{held: make(map[string]struct{})}
}

func (l *processSlotLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if _, busy := l.held[key]; busy {
		l.mu.Unlock()
		return ErrLockNotAcquired
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
