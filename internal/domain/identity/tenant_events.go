package identity

import (
	"github.com/inkflow/backend/internal/domain/shared"
)

// Event types for the Tenant aggregate
const (
	EventTypeTenantCreated             = "tenant.created"
	EventTypeTenantTierChanged         = "tenant.tier_changed"
	EventTypeTenantBillingStatusChange = "tenant.billing_status_changed"
)

// TenantCreatedEvent is raised when a new tenant signs up
type TenantCreatedEvent struct {
	shared.BaseDomainEvent
	Name string `json:"name"`
	Tier Tier   `json:"tier"`
}

// NewTenantCreatedEvent creates a new TenantCreatedEvent
func NewTenantCreatedEvent(t *Tenant) *TenantCreatedEvent {
	return &TenantCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantCreated, t.ID, "Tenant", t.ID),
		Name:            t.Name,
		Tier:            t.Tier,
	}
}

// TenantTierChangedEvent is raised when a tenant moves between tiers
type TenantTierChangedEvent struct {
	shared.BaseDomainEvent
	OldTier Tier `json:"old_tier"`
	NewTier Tier `json:"new_tier"`
}

// NewTenantTierChangedEvent creates a new TenantTierChangedEvent
func NewTenantTierChangedEvent(t *Tenant, oldTier, newTier Tier) *TenantTierChangedEvent {
	return &TenantTierChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantTierChanged, t.ID, "Tenant", t.ID),
		OldTier:         oldTier,
		NewTier:         newTier,
	}
}

// TenantBillingStatusChangedEvent is raised on every billing status transition
type TenantBillingStatusChangedEvent struct {
	shared.BaseDomainEvent
	OldStatus BillingStatus `json:"old_status"`
	NewStatus BillingStatus `json:"new_status"`
}

// NewTenantBillingStatusChangedEvent creates a new TenantBillingStatusChangedEvent
func NewTenantBillingStatusChangedEvent(t *Tenant, oldStatus, newStatus BillingStatus) *TenantBillingStatusChangedEvent {
	return &TenantBillingStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantBillingStatusChange, t.ID, "Tenant", t.ID),
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
	}
}
