// Package lock provides keyed mutual exclusion used to serialise rule
// watermark updates and per-record transitions.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockAcquire is returned when a lock cannot be obtained.
var ErrLockAcquire = errors.New("failed to acquire lock")

// UnlockFunc releases a held lock.
type UnlockFunc func(ctx context.Context) error

// Locker hands out keyed locks. ttl bounds how long a crashed holder can
// keep a distributed lock; in-process implementations may ignore it.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
	// TryLock returns immediately; ok is false when another holder has the key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock UnlockFunc, ok bool, err error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]chan struct{})}
}

func (l *Local) Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	for {
		unlock, wait := l.acquire(key)
		if unlock != nil {
			return unlock, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

func (l *Local) TryLock(_ context.Context, key string, _ time.Duration) (UnlockFunc, bool, error) {
	unlock, _ := l.acquire(key)

	return unlock, unlock != nil, nil
}

// acquire either takes key and returns its unlock func, or returns a channel
// closed when the current holder releases it.
func (l *Local) acquire(key string) (UnlockFunc, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if wait, busy := l.held[key]; busy {
		return nil, wait
	}

	released := make(chan struct{})
	l.held[key] = released

	var once sync.Once

	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
			close(released)
		})

		return nil
	}, nil
}
