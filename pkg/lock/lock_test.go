package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_TryLock(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	unlock, ok, err := l.TryLock(ctx, "rule:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "rule:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "key is held")

	other, ok, err := l.TryLock(ctx, "rule:2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx), "unlock is idempotent")

	again, ok, err := l.TryLock(ctx, "rule:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, again(ctx))
}

func TestLocal_LockSerialises(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := l.Lock(ctx, "record", time.Minute)
			if !assert.NoError(t, err) {
				return
			}

			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}

			time.Sleep(time.Millisecond)
			inside.Add(-1)

			assert.NoError(t, unlock(ctx))
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestLocal_LockHonoursContext(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	defer func() { _ = unlock(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
