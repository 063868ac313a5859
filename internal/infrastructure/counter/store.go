// Package counter provides a TTL-bearing atomic counter abstraction shared
// by all rate-limiting callers. The primary implementation is backed by
// Redis so counts are consistent across server instances; a mutex-guarded
// in-process store serves single-instance deployments and acts as the
// fallback when Redis is unreachable.
package counter

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when the key is absent or expired
var ErrKeyNotFound = errors.New("counter: key not found")

// Store is a uniform interface over an atomic counter service.
// Increment must be atomic under concurrent callers sharing a key,
// including callers in different processes for distributed backends.
type Store interface {
	// Increment atomically adds one to the counter at key. The first
	// increment of a fresh key sets the TTL; later increments leave the
	// expiry untouched. Returns the post-increment count and the
	// remaining window.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error)

	// Get returns the current counter value, or ErrKeyNotFound
	Get(ctx context.Context, key string) (int64, error)

	// Set stores a value with a TTL, replacing any existing entry
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error

	// Delete removes a key; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error
}
