package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/ruleflow/pkg/lock"
	"github.com/dukex/ruleflow/pkg/lock/redis"
)

func newLocker(t *testing.T) (*redis.Locker, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	return redis.NewLocker(client, "ruleflow:", redis.WithRetryInterval(5*time.Millisecond)), mr
}

func TestLocker_TryLock(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	var _ lock.Locker = locker

	unlock, ok, err := locker.TryLock(ctx, "rule:r1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("ruleflow:lock:rule:r1"))

	_, ok, err = locker.TryLock(ctx, "rule:r1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("ruleflow:lock:rule:r1"))
}

func TestLocker_StaleUnlockKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)

	staleUnlock, ok, err := locker.TryLock(ctx, "rule:r1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryLock(ctx, "rule:r1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lock can be taken over")

	require.NoError(t, staleUnlock(ctx))
	assert.True(t, mr.Exists("ruleflow:lock:rule:r1"), "stale holder must not release the new lock")
}

func TestLocker_LockWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	locker, _ := newLocker(t)

	unlock, err := locker.Lock(ctx, "record:1", time.Minute)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = unlock(context.Background())
	}()

	second, err := locker.Lock(ctx, "record:1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, second(ctx))

	blocked, err := locker.Lock(ctx, "record:2", time.Minute)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(short, "record:2", time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, blocked(ctx))
}
