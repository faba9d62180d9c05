// Package redis implements lock.Locker with Redis SET NX PX, so several
// scheduler instances never run the same rule concurrently.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/dukex/ruleflow/pkg/lock"
)

const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// Locker implements lock.Locker using Redis.
type Locker struct {
	client   *backend.Client
	prefix   string
	interval time.Duration
}

// Option customises a Locker.
type Option func(*Locker)

// WithRetryInterval sets how often Lock polls a busy key.
func WithRetryInterval(d time.Duration) Option {
	return func(l *Locker) {
		l.interval = d
	}
}

// NewLocker creates a new Redis locker. Keys are stored as <prefix>lock:<key>.
func NewLocker(client *backend.Client, prefix string, opts ...Option) *Locker {
	l := &Locker{
		client:   client,
		prefix:   prefix,
		interval: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// NewLockerFromURL parses a redis:// URL.
func NewLockerFromURL(url, prefix string, opts ...Option) (*Locker, error) {
	options, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewLocker(backend.NewClient(options), prefix, opts...), nil
}

// Ping checks connectivity.
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (lock.UnlockFunc, error) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		unlock, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}

		if ok {
			return unlock, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (lock.UnlockFunc, bool, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	success, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: redis error: %w", lock.ErrLockAcquire, err)
	}

	if !success {
		return nil, false, nil
	}

	// The token check keeps a holder whose ttl expired from deleting a
	// lock that has since been taken by someone else.
	return func(ctx context.Context) error {
		return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
	}, true, nil
}
