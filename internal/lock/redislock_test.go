package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hotel-payments/internal/lock"
)

func newLocker(t *testing.T) (lock.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 2 * time.Millisecond}, mr
}

func TestWithLockSerialisesHolders(t *testing.T) {
	locker, _ := newLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "fulfill:booking:B1", time.Second, func(context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestWithLockReleasesOnError(t *testing.T) {
	locker, mr := newLocker(t)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "B1", time.Second, func(context.Context) error {
		require.True(t, mr.Exists("lock:B1"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("lock:B1"))
}

func TestWithLockGivesUpWhenContextEnds(t *testing.T) {
	locker, mr := newLocker(t)
	require.NoError(t, mr.Set("lock:B1", "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := locker.WithLock(ctx, "B1", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, called)
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	locker, mr := newLocker(t)

	err := locker.WithLock(context.Background(), "B1", time.Second, func(context.Context) error {
		// Simulate the TTL lapsing and another instance taking over.
		return mr.Set("lock:B1", "other-token")
	})
	require.NoError(t, err)
	got, err := mr.Get("lock:B1")
	require.NoError(t, err)
	require.Equal(t, "other-token", got)
}

func TestCustomPrefix(t *testing.T) {
	locker, mr := newLocker(t)
	locker.Prefix = "hotel:lock:"
	err := locker.WithLock(context.Background(), "B1", time.Second, func(context.Context) error {
		require.True(t, mr.Exists("hotel:lock:B1"))
		return nil
	})
	require.NoError(t, err)
}
