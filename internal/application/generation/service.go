package generation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appbilling "github.com/inkflow/backend/internal/application/billing"
	domainbilling "github.com/inkflow/backend/internal/domain/billing"
	"github.com/inkflow/backend/internal/infrastructure/provider"
)

// GenerateCommand is the input to a metered generation
type GenerateCommand struct {
	TenantID uuid.UUID
	Prompt   string
	Tone     string
}

// GenerateResult is the output of a successful generation
type GenerateResult struct {
	Text        string `json:"text"`
	Tone        string `json:"tone"`
	Model       string `json:"model"`
	TotalTokens int64  `json:"total_tokens"`
}

// Service runs the metered generation flow. A unit of allowance is
// reserved before the provider call and released if the call fails, so
// failed generations never count against the tenant.
type Service struct {
	ledger   *appbilling.QuotaLedger
	executor *Executor
	usage    domainbilling.UsageRecordRepository
	logger   *zap.Logger
}

// NewService creates a new generation Service
func NewService(ledger *appbilling.QuotaLedger, executor *Executor, usage domainbilling.UsageRecordRepository, logger *zap.Logger) *Service {
	return &Service{
		ledger:   ledger,
		executor: executor,
		usage:    usage,
		logger:   logger,
	}
}

// Generate meters and executes one generation call
func (s *Service) Generate(ctx context.Context, cmd GenerateCommand) (*GenerateResult, error) {
	reservation, err := s.ledger.Reserve(ctx, cmd.TenantID)
	if err != nil {
		return nil, err
	}
	// Release settles once per attempt: after a Commit it is a no-op, and
	// on any failure path it hands the reserved unit back.
	defer reservation.Release(context.WithoutCancel(ctx))

	started := time.Now()
	resp, err := s.executor.Execute(ctx, provider.Request{
		Prompt: cmd.Prompt,
		Tone:   cmd.Tone,
	})
	if err != nil {
		return nil, err
	}
	latency := time.Since(started)

	record := domainbilling.NewUsageRecord(cmd.TenantID, cmd.Tone, latency)
	if err := s.usage.Save(ctx, record); err != nil {
		// The generation succeeded and the tenant got their text; losing
		// one reporting row is not worth failing the request over.
		s.logger.Error("Failed to save usage record",
			zap.String("tenant_id", cmd.TenantID.String()),
			zap.Error(err))
	}

	reservation.Commit()

	s.logger.Info("Generation completed",
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("attempt_id", reservation.AttemptID.String()),
		zap.Duration("latency", latency),
		zap.Int64("total_tokens", resp.TotalTokens))

	return &GenerateResult{
		Text:        resp.Text,
		Tone:        cmd.Tone,
		Model:       resp.Model,
		TotalTokens: resp.TotalTokens,
	}, nil
}
