package counter

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// FallbackStore serves from a primary store until the first primary error,
// then flips to the secondary for the remainder of the process lifetime.
// The flip is sticky: a flapping Redis would otherwise split one logical
// window across two backends on every other request.
type FallbackStore struct {
	primary   Store
	secondary Store
	logger    *zap.Logger
	degraded  atomic.Bool
}

// NewFallbackStore creates a store that falls back from primary to secondary
func NewFallbackStore(primary, secondary Store, logger *zap.Logger) *FallbackStore {
	return &FallbackStore{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Degraded reports whether the store has flipped to the secondary
func (s *FallbackStore) Degraded() bool {
	return s.degraded.Load()
}

func (s *FallbackStore) active() Store {
	if s.degraded.Load() {
		return s.secondary
	}
	return s.primary
}

func (s *FallbackStore) flip(op string, err error) {
	if s.degraded.CompareAndSwap(false, true) {
		s.logger.Error("Counter store primary failed, falling back to in-process store for process lifetime",
			zap.String("operation", op),
			zap.Error(err))
	}
}

// Increment increments on the active store, flipping to the secondary on
// primary failure and retrying the call there
func (s *FallbackStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	count, remaining, err := s.active().Increment(ctx, key, ttl)
	if err != nil && !s.degraded.Load() {
		s.flip("increment", err)
		return s.secondary.Increment(ctx, key, ttl)
	}
	return count, remaining, err
}

// Get reads from the active store
func (s *FallbackStore) Get(ctx context.Context, key string) (int64, error) {
	value, err := s.active().Get(ctx, key)
	if err != nil && err != ErrKeyNotFound && !s.degraded.Load() {
		s.flip("get", err)
		return s.secondary.Get(ctx, key)
	}
	return value, err
}

// Set writes to the active store
func (s *FallbackStore) Set(ctx context.Context, key string, value int64, ttl time.Duration) error {
	err := s.active().Set(ctx, key, value, ttl)
	if err != nil && !s.degraded.Load() {
		s.flip("set", err)
		return s.secondary.Set(ctx, key, value, ttl)
	}
	return err
}

// Delete deletes from the active store
func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	err := s.active().Delete(ctx, key)
	if err != nil && !s.degraded.Load() {
		s.flip("delete", err)
		return s.secondary.Delete(ctx, key)
	}
	return err
}
