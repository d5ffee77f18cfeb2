package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(context.Background(), "profile-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Empty(t, k.locks)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		unlockB, err := k.Lock(context.Background(), "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()
	<-done
	unlockA()
	assert.Empty(t, k.locks)
}

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl), mr
}

func TestRedisLockerExcludesOtherHolders(t *testing.T) {
	locker, mr := newRedisLocker(t, 10*time.Second)

	unlock, err := locker.Lock(context.Background(), "profile-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("ledger:lock:profile-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "profile-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists("ledger:lock:profile-1"))

	unlock, err = locker.Lock(context.Background(), "profile-1")
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerUnlockKeepsForeignLock(t *testing.T) {
	locker, mr := newRedisLocker(t, 10*time.Second)

	unlock, err := locker.Lock(context.Background(), "profile-1")
	require.NoError(t, err)

	// our lock expired and another replica took the key
	mr.FastForward(11 * time.Second)
	require.False(t, mr.Exists("ledger:lock:profile-1"))
	require.NoError(t, mr.Set("ledger:lock:profile-1", "other-owner"))

	unlock()
	got, err := mr.Get("ledger:lock:profile-1")
	require.NoError(t, err)
	assert.Equal(t, "other-owner", got)
}
