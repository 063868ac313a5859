package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkflow/backend/internal/domain/billing"
)

// GormLifecycleEventRepository implements LifecycleEventRepository using GORM
type GormLifecycleEventRepository struct {
	db *gorm.DB
}

// NewGormLifecycleEventRepository creates a new GormLifecycleEventRepository
func NewGormLifecycleEventRepository(db *gorm.DB) *GormLifecycleEventRepository {
	return &GormLifecycleEventRepository{db: db}
}

// Append writes one event to the audit log
func (r *GormLifecycleEventRepository) Append(ctx context.Context, event *billing.LifecycleEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// FindByTenant returns the most recent events for a tenant
func (r *GormLifecycleEventRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]billing.LifecycleEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []billing.LifecycleEvent
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// HasTransaction reports whether an event with this transaction ID was
// already recorded for the tenant
func (r *GormLifecycleEventRepository) HasTransaction(ctx context.Context, tenantID uuid.UUID, eventType billing.LifecycleEventType, transactionID string) (bool, error) {
	if transactionID == "" {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&billing.LifecycleEvent{}).
		Where("tenant_id = ? AND event_type = ? AND transaction_id = ?", tenantID, eventType, transactionID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasReminder reports whether a grace-period reminder for the given
// days-remaining mark was already sent within the current grace window.
// The window start bound keeps reminders from an earlier grace period
// (already closed by a successful payment) from suppressing new ones.
func (r *GormLifecycleEventRepository) HasReminder(ctx context.Context, tenantID uuid.UUID, daysRemaining int, windowStart time.Time) (bool, error) {
	marker := fmt.Sprintf(`%%"days_remaining":%d%%`, daysRemaining)

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&billing.LifecycleEvent{}).
		Where("tenant_id = ? AND event_type = ?", tenantID, billing.LifecycleEventGraceReminderSent).
		Where("created_at >= ?", windowStart).
		Where("metadata LIKE ?", marker).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ billing.LifecycleEventRepository = (*GormLifecycleEventRepository)(nil)
