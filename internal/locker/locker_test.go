package locker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	t.Parallel()

	l := NewLocal()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "courier-1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			assert.NoError(t, unlock(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, l.size(), "entries should be dropped once released")
}

func TestLocal_TryLockAndContext(t *testing.T) {
	t.Parallel()

	l := NewLocal()
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "courier-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "courier-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.TryLock(ctx, "courier-2")
	require.NoError(t, err)
	assert.True(t, ok, "other keys must not be blocked")

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "courier-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx), "double unlock is a no-op")

	again, err := l.Lock(ctx, "courier-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedis_LockLifecycle(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	l := NewRedis(client, RedisOptions{Prefix: "availability:", TTL: 30 * time.Millisecond, RetryInterval: 5 * time.Millisecond}, nil)
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "courier-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, client.values, "availability:courier-1")

	_, ok, err = l.TryLock(ctx, "courier-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.Lock(ctx, "courier-1")
	assert.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, unlock(ctx))
	assert.NotContains(t, client.values, "availability:courier-1")

	next, err := l.Lock(ctx, "courier-1")
	require.NoError(t, err)
	require.NoError(t, next(ctx))
}

func TestRedis_ReleaseChecksOwnership(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	l := NewRedis(client, RedisOptions{}, nil)
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "courier-1")
	require.NoError(t, err)
	require.True(t, ok)

	client.values["courier-1"] = `"someone-else"`
	assert.ErrorIs(t, unlock(ctx), ErrNotOwned)

	delete(client.values, "courier-1")
	_, ok, err = l.TryLock(ctx, "courier-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedis_ExpiredLeaseReleasesQuietly(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	l := NewRedis(client, RedisOptions{}, nil)
	ctx := context.Background()

	unlock, ok, err := l.TryLock(ctx, "courier-1")
	require.NoError(t, err)
	require.True(t, ok)

	delete(client.values, "courier-1")
	assert.NoError(t, unlock(ctx))
}

func TestRedis_PropagatesClientErrors(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	client.err = assert.AnError
	l := NewRedis(client, RedisOptions{}, nil)

	_, err := l.Lock(context.Background(), "courier-1")
	assert.ErrorIs(t, err, assert.AnError)
}
