// Package ratelimit implements fixed-window request limiting on top of the
// counter store, so the same budget is enforced across every server
// instance sharing the store.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/inkflow/backend/internal/infrastructure/counter"
)

// Decision is the outcome of an admission check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Config holds rate limiter policy
type Config struct {
	MaxRequests int           // requests admitted per window
	Window      time.Duration // fixed window length
}

// DefaultConfig returns the default policy: 100 requests per 15 minutes
func DefaultConfig() Config {
	return Config{
		MaxRequests: 100,
		Window:      15 * time.Minute,
	}
}

// Limiter counts requests per caller key in fixed, non-overlapping windows
type Limiter struct {
	store  counter.Store
	config Config
	logger *zap.Logger
}

// NewLimiter creates a fixed-window limiter over the given counter store
func NewLimiter(store counter.Store, config Config, logger *zap.Logger) *Limiter {
	if config.MaxRequests <= 0 {
		config.MaxRequests = DefaultConfig().MaxRequests
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	return &Limiter{
		store:  store,
		config: config,
		logger: logger,
	}
}

// Admit records one request for key and decides whether it may proceed.
//
// The increment happens unconditionally, so a caller hammering past the
// limit keeps counting against the current window and cannot ride retries
// into fresh budget. The request that first exceeds the limit is itself
// rejected.
//
// Rate limiting is not billing-critical: if the counter store errors even
// after its fallback, the limiter fails open and admits the request.
func (l *Limiter) Admit(ctx context.Context, key string) Decision {
	count, remainingTTL, err := l.store.Increment(ctx, "ratelimit:"+key, l.config.Window)
	if err != nil {
		l.logger.Warn("Rate limit store unavailable, failing open",
			zap.String("key", key),
			zap.Error(err))
		return Decision{
			Allowed:   true,
			Limit:     l.config.MaxRequests,
			Remaining: l.config.MaxRequests,
			ResetAt:   time.Now().Add(l.config.Window),
		}
	}

	remaining := l.config.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(l.config.MaxRequests),
		Limit:     l.config.MaxRequests,
		Remaining: remaining,
		ResetAt:   time.Now().Add(remainingTTL),
	}
}
