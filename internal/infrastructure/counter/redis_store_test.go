package counter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_Increment(t *testing.T) {
	ctx := context.Background()

	t.Run("counts sequential increments", func(t *testing.T) {
		store, _ := newTestRedisStore(t)

		for want := int64(1); want <= 5; want++ {
			count, remaining, err := store.Increment(ctx, "k1", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, count)
			assert.Greater(t, remaining, time.Duration(0))
		}
	})

	t.Run("first increment sets the TTL, later ones keep it", func(t *testing.T) {
		store, mr := newTestRedisStore(t)

		_, first, err := store.Increment(ctx, "k2", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, time.Minute, first)

		mr.FastForward(30 * time.Second)

		_, remaining, err := store.Increment(ctx, "k2", time.Minute)
		require.NoError(t, err)
		assert.LessOrEqual(t, remaining, 30*time.Second)
	})

	t.Run("counter resets after expiry", func(t *testing.T) {
		store, mr := newTestRedisStore(t)

		_, _, err := store.Increment(ctx, "k3", time.Minute)
		require.NoError(t, err)

		mr.FastForward(61 * time.Second)

		count, _, err := store.Increment(ctx, "k3", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("keys are independent", func(t *testing.T) {
		store, _ := newTestRedisStore(t)

		_, _, err := store.Increment(ctx, "a", time.Minute)
		require.NoError(t, err)
		count, _, err := store.Increment(ctx, "b", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestRedisStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	t.Run("get missing key returns ErrKeyNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("set then get round-trips", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k", 42, time.Minute))
		value, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, int64(42), value)
	})

	t.Run("delete removes the key", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "gone", 1, time.Minute))
		require.NoError(t, store.Delete(ctx, "gone"))
		_, err := store.Get(ctx, "gone")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestRedisStore_IncrementAfterConnectionLoss(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()

	_, _, err := store.Increment(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}
