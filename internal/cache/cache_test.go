package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisWithClient(client)
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "org:abc", "1", time.Minute))
	got, err := c.Get(ctx, "org:abc")
	require.NoError(t, err)
	require.Equal(t, "1", got)

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "org:abc")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "org:abc", "1", time.Minute))
	require.NoError(t, c.Del(ctx, "org:abc"))
	_, err = c.Get(ctx, "org:abc")
	require.ErrorIs(t, err, ErrMiss)
}

func TestMemoryCache(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "member:a:b", "0", 50*time.Millisecond))
	got, err := c.Get(ctx, "member:a:b")
	require.NoError(t, err)
	require.Equal(t, "0", got)

	time.Sleep(80 * time.Millisecond)
	_, err = c.Get(ctx, "member:a:b")
	require.ErrorIs(t, err, ErrMiss)
}
