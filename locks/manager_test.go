package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisManagers(t *testing.T) (*miniredis.Miniredis, *RedisManager, *RedisManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	mk := func() *RedisManager {
		m := NewRedisManagerFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, nil)
		t.Cleanup(func() { m.Close() })
		return m
	}
	return mr, mk(), mk()
}

func exerciseManager(t *testing.T, a, b Manager) {
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "alice:/doc.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "alice:/doc.txt")
	require.NoError(t, err)
	assert.False(t, ok, "second writer must not get the lock")

	ok, err = b.Acquire(ctx, "alice:/other.txt")
	require.NoError(t, err)
	assert.True(t, ok, "different keys are independent")

	require.NoError(t, a.Release(ctx, "alice:/doc.txt"))
	assert.ErrorIs(t, a.Release(ctx, "alice:/doc.txt"), ErrNotHeld)

	ok, err = b.Acquire(ctx, "alice:/doc.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalManager(t *testing.T) {
	m := NewLocalManager()
	exerciseManager(t, m, m)
}

func TestLocalManager_CancelledContext(t *testing.T) {
	m := NewLocalManager()
	ctx, cancel := context.WithCancel(context.Background())

	ok, err := m.Acquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	cancel()
	_, err = m.Acquire(ctx, "other")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoError(t, m.Release(ctx, "k"), "release must work after cancellation")
}

func TestLocalManager_Concurrent(t *testing.T) {
	m := NewLocalManager()
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.Acquire(context.Background(), "same"); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, winners.Load())
}

func TestRedisManager(t *testing.T) {
	_, a, b := newRedisManagers(t)
	exerciseManager(t, a, b)
}

func TestRedisManager_ExpiredLockIsNotStolenBack(t *testing.T) {
	mr, a, b := newRedisManagers(t)
	ctx := context.Background()

	ok, err := a.Acquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = b.Acquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok, "expired lock is free")

	require.NoError(t, a.Release(ctx, "k"))
	assert.True(t, mr.Exists(keyPrefix+"k"), "stale holder must not delete the new holder's lock")
}

func TestRedisManager_ReleaseAfterCancel(t *testing.T) {
	mr, a, _ := newRedisManagers(t)
	ctx, cancel := context.WithCancel(context.Background())

	ok, err := a.Acquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	cancel()
	require.NoError(t, a.Release(ctx, "k"))
	assert.False(t, mr.Exists(keyPrefix+"k"))
}
