package lease

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

func TestLocalGuard(t *testing.T) {
	ctx := context.Background()
	g := NewLocal()

	release, ok, err := g.TryAcquire(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, g.Held("a1"))

	_, ok, err = g.TryAcquire(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, ok, "second claim on a held key must fail")

	_, ok, _ = g.TryAcquire(ctx, "a2")
	assert.True(t, ok, "other keys are independent")

	release()
	release()
	assert.False(t, g.Held("a1"))
	_, ok, _ = g.TryAcquire(ctx, "a1")
	assert.True(t, ok)
}

func newRedisGuard(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisWithClient(client, "sync:", ttl), mr
}

func TestRedisGuard(t *testing.T) {
	ctx := context.Background()
	g, mr := newRedisGuard(t, time.Minute)

	release, ok, err := g.TryAcquire(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("sync:a1"))

	_, ok, err = g.TryAcquire(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	assert.False(t, mr.Exists("sync:a1"))
}

func TestRedisGuardExpiredLeaseIsNotStolenBack(t *testing.T) {
	ctx := context.Background()
	g, mr := newRedisGuard(t, time.Second)

	staleRelease, ok, err := g.TryAcquire(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = g.TryAcquire(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok, "expired lease can be claimed again")

	staleRelease()
	assert.True(t, mr.Exists("sync:a1"), "stale holder must not delete the new claim")
}

func TestRedisGuardUnavailable(t *testing.T) {
	g, mr := newRedisGuard(t, time.Minute)
	mr.Close()

	_, ok, err := g.TryAcquire(context.Background(), "a1")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis("://nope", "", time.Second)
	assert.Error(t, err)
}

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("s1")
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, k.size(), "entries are dropped when unused")
}
