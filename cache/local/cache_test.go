package local

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *LocalCache {
	c, err := NewCache(Config{GCInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", "value1", 0))

	v, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, "value1", v)
}

func TestGetMissing(t *testing.T) {
	c := newTestCache(t)
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ttl_key", "val", 10*time.Millisecond))

	time.Sleep(20 * time.Millisecond)
	_, err := c.Get(ctx, "ttl_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDel(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	_ = c.Set(ctx, "k", "v", 0)
	_ = c.HSet(ctx, "k", map[string]string{"f": "v"})
	_ = c.Del(ctx, "k")
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	all, _ := c.HGetAll(ctx, "k")
	assert.Empty(t, all)
}

func TestHash(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "bot:status", map[string]string{"status": "online", "health": "20"}))
	require.NoError(t, c.HSet(ctx, "bot:status", map[string]string{"health": "14"}))

	all, err := c.HGetAll(ctx, "bot:status")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "online", "health": "14"}, all)

	missing, err := c.HGetAll(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestPushCapped(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.PushCapped(ctx, "l", 10, "c", "b", "a"))
	items, err := c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, items)

	for i := 0; i < 20; i++ {
		require.NoError(t, c.PushCapped(ctx, "l", 10, fmt.Sprint(i)))
	}
	items, _ = c.LRange(ctx, "l", 0, -1)
	require.Len(t, items, 10)
	assert.Equal(t, "19", items[0], "newest first")
	assert.Equal(t, "10", items[9])
}

func TestLRange_Bounds(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.PushCapped(ctx, "l", 0, "x", "y"))

	items, _ := c.LRange(ctx, "l", 5, 10)
	assert.Nil(t, items)
	items, _ = c.LRange(ctx, "l", 0, 0)
	assert.Equal(t, []string{"y"}, items)
}

func TestExists(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.Exists(ctx, "session:x")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "session:x", "operator", time.Hour))
	ok, _ = c.Exists(ctx, "session:x")
	assert.True(t, ok)

	require.NoError(t, c.PushCapped(ctx, "logs", 5, "a"))
	ok, _ = c.Exists(ctx, "logs")
	assert.True(t, ok)
}

func TestIncr(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr(ctx, "fails", 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	time.Sleep(20 * time.Millisecond)
	n, err := c.Incr(ctx, "fails", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counter restarts after expiry")

	require.NoError(t, c.Set(ctx, "word", "abc", 0))
	_, err = c.Incr(ctx, "word", 0)
	assert.Error(t, err)
}
