package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
}

func newRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test"), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, mr := newRedis(t)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "report:a", payload{Name: "a", Rows: 3}, time.Minute))
	assert.True(t, mr.Exists("test:report:a"))

	got, err := GetTyped[payload](ctx, c, "report:a")
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "a", Rows: 3}, got)

	mr.FastForward(2 * time.Minute)
	_, err = GetTyped[payload](ctx, c, "report:a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisLock(t *testing.T) {
	ctx := context.Background()
	c, _ := newRedis(t)
	defer c.Close()

	ok, err := c.TryLock(ctx, "refresh", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TryLock(ctx, "refresh", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second lock must fail while held")

	require.NoError(t, c.Unlock(ctx, "refresh"))
	ok, err = c.TryLock(ctx, "refresh", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheExpiryAndEviction(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryCleanup(0), WithMemoryClock(func() time.Time { return now }))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", payload{Name: "a"}, time.Second))
	now = now.Add(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", payload{Name: "b"}, 0))
	now = now.Add(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", payload{Name: "c"}, 0))

	_, err := GetTyped[payload](ctx, mc, "a")
	assert.ErrorIs(t, err, ErrCacheMiss, "least recently used key is evicted")

	now = now.Add(time.Hour)
	got, err := GetTyped[payload](ctx, mc, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name)
}

func TestLayeredCacheReadsThrough(t *testing.T) {
	ctx := context.Background()
	remote, mr := newRedis(t)
	lc := NewLayeredCache(remote)
	defer lc.Close()

	require.NoError(t, remote.Set(ctx, "k", payload{Name: "remote"}, 0))
	got, err := GetTyped[payload](ctx, lc, "k")
	require.NoError(t, err)
	assert.Equal(t, "remote", got.Name)

	// served from L1 now
	mr.Del("test:k")
	got, err = GetTyped[payload](ctx, lc, "k")
	require.NoError(t, err)
	assert.Equal(t, "remote", got.Name)

	require.NoError(t, lc.Delete(ctx, "k"))
	_, err = GetTyped[payload](ctx, lc, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
