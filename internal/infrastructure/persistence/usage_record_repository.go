package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkflow/backend/internal/domain/billing"
)

// GormUsageRecordRepository implements UsageRecordRepository using GORM
type GormUsageRecordRepository struct {
	db *gorm.DB
}

// NewGormUsageRecordRepository creates a new GormUsageRecordRepository
func NewGormUsageRecordRepository(db *gorm.DB) *GormUsageRecordRepository {
	return &GormUsageRecordRepository{db: db}
}

// Save persists one usage record
func (r *GormUsageRecordRepository) Save(ctx context.Context, record *billing.UsageRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// CountByTenant counts a tenant's usage records in [from, to)
func (r *GormUsageRecordRepository) CountByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&billing.UsageRecord{}).
		Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, from, to).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SummarizeByTenant aggregates a tenant's usage records in [from, to)
func (r *GormUsageRecordRepository) SummarizeByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*billing.UsageSummary, error) {
	summary := &billing.UsageSummary{
		TenantID: tenantID,
		ByTone:   make(map[string]int64),
	}

	base := r.db.WithContext(ctx).
		Model(&billing.UsageRecord{}).
		Where("tenant_id = ? AND created_at >= ? AND created_at < ?", tenantID, from, to)

	var totals struct {
		Count      int64
		AvgLatency float64
	}
	if err := base.Session(&gorm.Session{}).
		Select("COUNT(*) AS count, COALESCE(AVG(latency_ms), 0) AS avg_latency").
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	summary.Count = totals.Count
	summary.AvgLatencyMS = totals.AvgLatency

	var toneRows []struct {
		Tone  string
		Count int64
	}
	if err := base.Session(&gorm.Session{}).
		Select("tone, COUNT(*) AS count").
		Group("tone").
		Scan(&toneRows).Error; err != nil {
		return nil, err
	}
	for _, row := range toneRows {
		summary.ByTone[row.Tone] = row.Count
	}

	return summary, nil
}

var _ billing.UsageRecordRepository = (*GormUsageRecordRepository)(nil)
