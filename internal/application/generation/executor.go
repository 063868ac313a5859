// Package generation orchestrates metered generation calls: quota
// reservation, the retrying provider call, and usage recording.
package generation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/inkflow/backend/internal/infrastructure/provider"
)

// ExecutorConfig holds retry policy for provider calls
type ExecutorConfig struct {
	// MaxRetries is the number of extra attempts after the first call
	MaxRetries int

	// BackoffCap bounds the delay between attempts
	BackoffCap time.Duration

	// Timeout bounds the whole execution including retries and backoff
	Timeout time.Duration
}

// DefaultExecutorConfig returns the default retry policy
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxRetries: 3,
		BackoffCap: 8 * time.Second,
		Timeout:    30 * time.Second,
	}
}

// Executor wraps the provider client with bounded retries. Only errors the
// provider classified as retryable are retried; terminal errors surface
// immediately with the remaining budget unspent.
type Executor struct {
	generator provider.Generator
	config    ExecutorConfig
	logger    *zap.Logger
}

// NewExecutor creates a new Executor
func NewExecutor(generator provider.Generator, config ExecutorConfig, logger *zap.Logger) *Executor {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BackoffCap <= 0 {
		config.BackoffCap = DefaultExecutorConfig().BackoffCap
	}
	return &Executor{
		generator: generator,
		config:    config,
		logger:    logger,
	}
}

// Execute performs the provider call with up to MaxRetries extra attempts.
// The first retry fires immediately; later retries back off exponentially
// from one second, capped at BackoffCap. Backoff sleeps abort when ctx is
// canceled.
func (e *Executor) Execute(ctx context.Context, req provider.Request) (*provider.Response, error) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
				return nil, err
			}
			e.logger.Info("Retrying generation call",
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
		}

		resp, err := e.generator.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !provider.IsRetryable(err) {
			e.logger.Warn("Generation call failed terminally",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			return nil, err
		}
	}

	e.logger.Error("Generation retries exhausted",
		zap.Int("attempts", e.config.MaxRetries+1),
		zap.Error(lastErr))
	return nil, lastErr
}

// backoff returns the delay before the given retry attempt (1-based).
// The first retry is immediate.
func (e *Executor) backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := time.Second << (attempt - 2)
	if delay > e.config.BackoffCap {
		return e.config.BackoffCap
	}
	return delay
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
