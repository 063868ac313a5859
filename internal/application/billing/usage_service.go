package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainbilling "github.com/inkflow/backend/internal/domain/billing"
	"github.com/inkflow/backend/internal/domain/identity"
)

// UsageView is the current-period usage summary for one tenant
type UsageView struct {
	TenantID     uuid.UUID        `json:"tenant_id"`
	Tier         identity.Tier    `json:"tier"`
	MonthlyLimit int              `json:"monthly_limit"`
	MonthlyUsed  int              `json:"monthly_used"`
	Remaining    int              `json:"remaining"`
	PeriodEnd    time.Time        `json:"period_end"`
	AvgLatencyMS float64          `json:"avg_latency_ms"`
	ByTone       map[string]int64 `json:"by_tone"`
}

// UsageService assembles usage reporting from the tenant counters and the
// append-only usage records
type UsageService struct {
	tenants identity.TenantRepository
	usage   domainbilling.UsageRecordRepository
	logger  *zap.Logger
}

// NewUsageService creates a new UsageService
func NewUsageService(tenants identity.TenantRepository, usage domainbilling.UsageRecordRepository, logger *zap.Logger) *UsageService {
	return &UsageService{
		tenants: tenants,
		usage:   usage,
		logger:  logger,
	}
}

// CurrentPeriod returns the tenant's usage for the running billing period
func (s *UsageService) CurrentPeriod(ctx context.Context, tenantID uuid.UUID) (*UsageView, error) {
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	periodStart := tenant.PeriodEnd.AddDate(0, -1, 0)
	summary, err := s.usage.SummarizeByTenant(ctx, tenantID, periodStart, tenant.PeriodEnd)
	if err != nil {
		return nil, err
	}

	return &UsageView{
		TenantID:     tenant.ID,
		Tier:         tenant.Tier,
		MonthlyLimit: tenant.MonthlyLimit,
		MonthlyUsed:  tenant.MonthlyUsed,
		Remaining:    tenant.RemainingResponses(),
		PeriodEnd:    tenant.PeriodEnd,
		AvgLatencyMS: summary.AvgLatencyMS,
		ByTone:       summary.ByTone,
	}, nil
}
