package residency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()
	ctx := context.Background()

	blob := []byte("AFRC")
	require.NoError(t, cache.Set(ctx, "textures/wood.png", blob, 0))
	blob[0] = 'X'

	got, err := cache.Get(ctx, "textures/wood.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("AFRC"), got)

	ok, err := cache.Exists(ctx, "textures/wood.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCache_Miss(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()

	_, err := cache.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, IsCacheMiss(err))
	assert.Equal(t, "cache miss: nope", err.Error())

	ok, err := cache.Exists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache := NewMemoryCacheWithConfig(Config{DefaultTTL: 20 * time.Millisecond, Prefix: "t:"})
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "short", []byte("a"), 0))
	require.NoError(t, cache.Set(ctx, "forever", []byte("b"), -1))

	time.Sleep(50 * time.Millisecond)

	_, err := cache.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))
	got, err := cache.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), 0))

	require.NoError(t, cache.Delete(ctx, "a"))
	ok, _ := cache.Exists(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Clear(ctx))
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_CancelledContext(t *testing.T) {
	cache := NewMemoryCache()
	defer cache.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, cache.Set(ctx, "a", nil, 0), context.Canceled)
	_, err := cache.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen(t *testing.T) {
	c, err := Open(BackendMemory, RedisConfig{}, DefaultConfig())
	require.NoError(t, err)
	defer c.Close()
	assert.IsType(t, &MemoryCache{}, c)

	_, err = Open("memcached", RedisConfig{}, DefaultConfig())
	assert.EqualError(t, err, `unknown cache backend "memcached"`)
}
