package counter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFallbackStore(t *testing.T) {
	ctx := context.Background()

	t.Run("serves from primary while healthy", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		store := NewFallbackStore(NewRedisStore(client), NewMemoryStore(), zap.NewNop())

		count, _, err := store.Increment(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.False(t, store.Degraded())
	})

	t.Run("flips to secondary on first primary error and stays there", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		secondary := NewMemoryStore()
		store := NewFallbackStore(NewRedisStore(client), secondary, zap.NewNop())

		count, _, err := store.Increment(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.Equal(t, int64(1), count)

		mr.Close()

		// The failed increment retries on the secondary, which starts its
		// own window at one.
		count, _, err = store.Increment(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.True(t, store.Degraded())

		// Sticky: the store keeps counting in memory even though the op
		// would still fail on the primary.
		count, _, err = store.Increment(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("missing key on primary does not flip", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		store := NewFallbackStore(NewRedisStore(client), NewMemoryStore(), zap.NewNop())

		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.False(t, store.Degraded())
	})
}
