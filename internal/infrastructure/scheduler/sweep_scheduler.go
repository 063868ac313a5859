// Package scheduler runs the in-process billing sweep loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	appbilling "github.com/inkflow/backend/internal/application/billing"
)

// SweepSchedulerConfig holds configuration for the sweep loop
type SweepSchedulerConfig struct {
	// Interval is how often the sweeps run
	Interval time.Duration
}

// DefaultSweepSchedulerConfig returns the default sweep schedule
func DefaultSweepSchedulerConfig() SweepSchedulerConfig {
	return SweepSchedulerConfig{
		Interval: time.Hour,
	}
}

// SweepScheduler periodically runs the grace-period and trial-expiration
// sweeps. Both sweeps are idempotent, so this loop can coexist with an
// external scheduler hitting the /cron endpoints.
type SweepScheduler struct {
	config SweepSchedulerConfig
	sweep  *appbilling.SweepService
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSweepScheduler creates a new SweepScheduler
func NewSweepScheduler(config SweepSchedulerConfig, sweep *appbilling.SweepService, logger *zap.Logger) *SweepScheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSweepSchedulerConfig().Interval
	}
	return &SweepScheduler{
		config: config,
		sweep:  sweep,
		logger: logger,
	}
}

// Start starts the sweep loop
func (s *SweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Sweep scheduler started",
		zap.Duration("interval", s.config.Interval))
	return nil
}

// Stop stops the sweep loop and waits for an in-flight pass to finish
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.isRunning = false

	s.cancel()
	s.wg.Wait()

	s.logger.Info("Sweep scheduler stopped")
}

func (s *SweepScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SweepScheduler) runOnce(ctx context.Context) {
	if _, err := s.sweep.SweepGracePeriods(ctx); err != nil {
		s.logger.Error("Scheduled grace period sweep failed", zap.Error(err))
	}
	if _, err := s.sweep.SweepTrialExpirations(ctx); err != nil {
		s.logger.Error("Scheduled trial expiration sweep failed", zap.Error(err))
	}
}
