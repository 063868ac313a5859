package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/inkflow/backend/internal/domain/shared"
)

// UsageRecord is one append-only record per successful generation.
// Records are immutable once written and serve reporting only; quota
// decisions read the tenant usage counter directly.
type UsageRecord struct {
	shared.BaseEntity
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Tone      string    `gorm:"type:varchar(50)"`
	LatencyMS int64     `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (UsageRecord) TableName() string {
	return "usage_records"
}

// NewUsageRecord creates a new usage record
func NewUsageRecord(tenantID uuid.UUID, tone string, latency time.Duration) *UsageRecord {
	return &UsageRecord{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		Tone:       tone,
		LatencyMS:  latency.Milliseconds(),
	}
}

// UsageSummary aggregates a tenant's recorded usage for a period
type UsageSummary struct {
	TenantID     uuid.UUID        `json:"tenant_id"`
	Count        int64            `json:"count"`
	AvgLatencyMS float64          `json:"avg_latency_ms"`
	ByTone       map[string]int64 `json:"by_tone"`
}

// UsageRecordRepository defines the persistence interface for usage records
type UsageRecordRepository interface {
	Save(ctx context.Context, record *UsageRecord) error
	CountByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error)
	SummarizeByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*UsageSummary, error)
}
