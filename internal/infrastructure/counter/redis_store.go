package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript performs INCR plus a conditional PEXPIRE in one atomic
// step. Setting the expiry only when the key has none closes the
// check-then-set race between two instances both observing a fresh key.
//
// KEYS[1] = counter key
// ARGV[1] = ttl in milliseconds
//
// Returns {count, remaining_ttl_ms}.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
    ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisStore implements Store on a shared Redis instance
type RedisStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// RedisOption configures RedisStore
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the Redis key prefix (default "counter:")
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = prefix }
}

// NewRedisStore creates a Redis-backed counter store.
// The client must be a connected *redis.Client or *redis.ClusterClient.
func NewRedisStore(client redis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: "counter:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(key string) string {
	return s.keyPrefix + key
}

// Increment atomically increments the counter, setting the TTL on first use
func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	result, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("counter: redis increment: %w", err)
	}
	if len(result) != 2 {
		return 0, 0, fmt.Errorf("counter: unexpected increment reply length %d", len(result))
	}
	return result[0], time.Duration(result[1]) * time.Millisecond, nil
}

// Get returns the current counter value
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrKeyNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("counter: redis get: %w", err)
	}
	return value, nil
}

// Set stores a value with a TTL
func (s *RedisStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("counter: redis set: %w", err)
	}
	return nil
}

// Delete removes a key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("counter: redis delete: %w", err)
	}
	return nil
}
