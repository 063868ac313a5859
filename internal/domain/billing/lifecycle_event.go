package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/inkflow/backend/internal/domain/identity"
	"github.com/inkflow/backend/internal/domain/shared"
)

// LifecycleEventType identifies a billing lifecycle transition
type LifecycleEventType string

const (
	LifecycleEventSubscriptionActivated LifecycleEventType = "subscription_activated"
	LifecycleEventSubscriptionUpdated   LifecycleEventType = "subscription_updated"
	LifecycleEventSubscriptionCanceled  LifecycleEventType = "subscription_canceled"
	LifecycleEventPaymentFailed         LifecycleEventType = "payment_failed"
	LifecycleEventGraceReminderSent     LifecycleEventType = "grace_period_reminder_sent"
	LifecycleEventDowngradedAfterGrace  LifecycleEventType = "account_downgraded_after_grace_period"
	LifecycleEventTrialExpired          LifecycleEventType = "trial_expired"
)

// LifecycleEvent is one record in the append-only billing audit trail.
// Every billing-status transition produces exactly one record; the log is
// also what makes reminder sends and webhook replays idempotent.
type LifecycleEvent struct {
	shared.BaseEntity
	TenantID      uuid.UUID          `gorm:"type:uuid;not null;index"`
	EventType     LifecycleEventType `gorm:"type:varchar(60);not null;index"`
	PriorTier     identity.Tier      `gorm:"type:varchar(20)"`
	NewTier       identity.Tier      `gorm:"type:varchar(20)"`
	Metadata      string             `gorm:"type:text;default:'{}'"`
	TransactionID string             `gorm:"type:varchar(120);index"`
}

// TableName returns the table name for GORM
func (LifecycleEvent) TableName() string {
	return "lifecycle_events"
}

// NewLifecycleEvent creates a new lifecycle event record
func NewLifecycleEvent(tenantID uuid.UUID, eventType LifecycleEventType, priorTier, newTier identity.Tier, transactionID string) *LifecycleEvent {
	return &LifecycleEvent{
		BaseEntity:    shared.NewBaseEntity(),
		TenantID:      tenantID,
		EventType:     eventType,
		PriorTier:     priorTier,
		NewTier:       newTier,
		Metadata:      "{}",
		TransactionID: transactionID,
	}
}

// WithMetadata attaches free-form JSON metadata to the event
func (e *LifecycleEvent) WithMetadata(metadata string) *LifecycleEvent {
	if metadata != "" {
		e.Metadata = metadata
	}
	return e
}

// LifecycleEventRepository defines the persistence interface for the audit log
type LifecycleEventRepository interface {
	Append(ctx context.Context, event *LifecycleEvent) error
	FindByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]LifecycleEvent, error)

	// HasTransaction reports whether an event with this transaction ID was
	// already recorded for the tenant. Used to drop webhook redeliveries.
	HasTransaction(ctx context.Context, tenantID uuid.UUID, eventType LifecycleEventType, transactionID string) (bool, error)

	// HasReminder reports whether a grace-period reminder for the given
	// days-remaining mark was already sent within the current grace window.
	HasReminder(ctx context.Context, tenantID uuid.UUID, daysRemaining int, windowStart time.Time) (bool, error)
}
