package identity

import (
	"strings"
	"time"

	"github.com/inkflow/backend/internal/domain/shared"
)

// Tier represents the subscription tier of a tenant
type Tier string

const (
	TierFree     Tier = "free"
	TierBusiness Tier = "business"
	TierPremium  Tier = "premium"
	TierTrial    Tier = "trial"
)

// BillingStatus represents the billing state of a tenant
type BillingStatus string

const (
	BillingStatusActive BillingStatus = "active"
	// BillingStatusPastDue is accepted on stored rows for data
	// compatibility; no transition produces it.
	BillingStatusPastDue       BillingStatus = "past_due"
	BillingStatusInGracePeriod BillingStatus = "in_grace_period"
	BillingStatusCanceled      BillingStatus = "canceled"
)

// tierLimits is the single source for tier response limits. Transitions
// always consult this table; limits are never derived arithmetically.
var tierLimits = map[Tier]int{
	TierFree:     25,
	TierBusiness: 250,
	TierPremium:  1000,
	TierTrial:    1000,
}

// MonthlyLimitForTier returns the monthly response limit for a tier
func MonthlyLimitForTier(tier Tier) int {
	return tierLimits[tier]
}

// GracePeriodDays is the length of the grace period opened on payment failure
const GracePeriodDays = 14

// Tenant represents a billable account in the system.
// It is the aggregate root for billing and usage operations.
//
// Usage fields (MonthlyUsed) are mutated exclusively through the quota
// ledger's repository operations; billing fields (Tier, BillingStatus,
// GracePeriodEnd, PeriodEnd) exclusively through the subscription service.
type Tenant struct {
	shared.BaseAggregateRoot
	Name                 string        `gorm:"type:varchar(200);not null"`
	Email                string        `gorm:"type:varchar(200);not null;uniqueIndex"`
	Tier                 Tier          `gorm:"type:varchar(20);not null;default:'free'"`
	MonthlyLimit         int           `gorm:"not null;default:25"`
	MonthlyUsed          int           `gorm:"not null;default:0"`
	BillingStatus        BillingStatus `gorm:"type:varchar(20);not null;default:'active'"`
	GracePeriodEnd       *time.Time    `gorm:"index"`
	PaymentFailureCount  int           `gorm:"not null;default:0"`
	StripeCustomerID     string        `gorm:"type:varchar(100);index"`
	StripeSubscriptionID string        `gorm:"type:varchar(100);index"`
	PeriodEnd            time.Time     `gorm:"not null;index"`
	TrialEndsAt          *time.Time
}

// TableName returns the table name for GORM
func (Tenant) TableName() string {
	return "tenants"
}

// NewTenant creates a new free-tier tenant
func NewTenant(name, email string) (*Tenant, error) {
	if err := validateTenantName(name); err != nil {
		return nil, err
	}
	if err := validateTenantEmail(email); err != nil {
		return nil, err
	}

	tenant := &Tenant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Email:             strings.ToLower(email),
		Tier:              TierFree,
		MonthlyLimit:      MonthlyLimitForTier(TierFree),
		BillingStatus:     BillingStatusActive,
		PeriodEnd:         time.Now().AddDate(0, 1, 0),
	}

	tenant.AddDomainEvent(NewTenantCreatedEvent(tenant))

	return tenant, nil
}

// NewTrialTenant creates a new tenant on a time-boxed trial of premium limits
func NewTrialTenant(name, email string, trialDays int) (*Tenant, error) {
	if trialDays <= 0 {
		return nil, shared.NewDomainError("INVALID_TRIAL_DAYS", "Trial days must be positive")
	}

	tenant, err := NewTenant(name, email)
	if err != nil {
		return nil, err
	}

	trialEnds := time.Now().AddDate(0, 0, trialDays)
	tenant.Tier = TierTrial
	tenant.MonthlyLimit = MonthlyLimitForTier(TierTrial)
	tenant.TrialEndsAt = &trialEnds

	return tenant, nil
}

// ChangeTier moves the tenant to a new tier and re-maps its monthly limit
func (t *Tenant) ChangeTier(tier Tier) error {
	if err := validateTier(tier); err != nil {
		return err
	}

	oldTier := t.Tier
	t.Tier = tier
	t.MonthlyLimit = MonthlyLimitForTier(tier)
	if tier != TierTrial {
		t.TrialEndsAt = nil
	}
	t.UpdatedAt = time.Now()
	t.IncrementVersion()

	if oldTier != tier {
		t.AddDomainEvent(NewTenantTierChangedEvent(t, oldTier, tier))
	}

	return nil
}

// ActivateSubscription marks the tenant active after a successful payment.
// It clears any grace period and resets the failure counter.
func (t *Tenant) ActivateSubscription(periodEnd time.Time) {
	oldStatus := t.BillingStatus
	t.BillingStatus = BillingStatusActive
	t.GracePeriodEnd = nil
	t.PaymentFailureCount = 0
	if !periodEnd.IsZero() {
		t.PeriodEnd = periodEnd
	}
	t.UpdatedAt = time.Now()
	t.IncrementVersion()

	if oldStatus != BillingStatusActive {
		t.AddDomainEvent(NewTenantBillingStatusChangedEvent(t, oldStatus, BillingStatusActive))
	}
}

// RecordPaymentFailure increments the failure counter and, if no grace
// period is already running, opens a fixed grace period window. An active
// grace period is never re-extended by later failures.
func (t *Tenant) RecordPaymentFailure(now time.Time) bool {
	t.PaymentFailureCount++
	t.UpdatedAt = now
	t.IncrementVersion()

	if t.IsInGracePeriod(now) {
		return false
	}

	oldStatus := t.BillingStatus
	end := now.AddDate(0, 0, GracePeriodDays)
	t.GracePeriodEnd = &end
	t.BillingStatus = BillingStatusInGracePeriod

	t.AddDomainEvent(NewTenantBillingStatusChangedEvent(t, oldStatus, BillingStatusInGracePeriod))
	return true
}

// DowngradeToFree forces the tenant onto the free tier. The free tier has
// no billing risk, so the resulting status is active, with all payment
// linkage and grace state cleared.
func (t *Tenant) DowngradeToFree() {
	oldStatus := t.BillingStatus
	oldTier := t.Tier

	t.Tier = TierFree
	t.MonthlyLimit = MonthlyLimitForTier(TierFree)
	t.BillingStatus = BillingStatusActive
	t.GracePeriodEnd = nil
	t.PaymentFailureCount = 0
	t.StripeSubscriptionID = ""
	t.TrialEndsAt = nil
	t.UpdatedAt = time.Now()
	t.IncrementVersion()

	if oldTier != TierFree {
		t.AddDomainEvent(NewTenantTierChangedEvent(t, oldTier, TierFree))
	}
	if oldStatus != BillingStatusActive {
		t.AddDomainEvent(NewTenantBillingStatusChangedEvent(t, oldStatus, BillingStatusActive))
	}
}

// MarkCanceled sets the terminal canceled status
func (t *Tenant) MarkCanceled() {
	oldStatus := t.BillingStatus
	t.BillingStatus = BillingStatusCanceled
	t.GracePeriodEnd = nil
	t.UpdatedAt = time.Now()
	t.IncrementVersion()

	if oldStatus != BillingStatusCanceled {
		t.AddDomainEvent(NewTenantBillingStatusChangedEvent(t, oldStatus, BillingStatusCanceled))
	}
}

// SetStripeCustomerID links the tenant to a Stripe customer
func (t *Tenant) SetStripeCustomerID(customerID string) {
	t.StripeCustomerID = customerID
	t.UpdatedAt = time.Now()
	t.IncrementVersion()
}

// SetStripeSubscriptionID links the tenant to a Stripe subscription
func (t *Tenant) SetStripeSubscriptionID(subscriptionID string) {
	t.StripeSubscriptionID = subscriptionID
	t.UpdatedAt = time.Now()
	t.IncrementVersion()
}

// RolloverPeriod resets usage for a new billing period. This is applied
// lazily by the quota ledger when a reserve observes a lapsed period.
func (t *Tenant) RolloverPeriod(now time.Time) {
	t.MonthlyUsed = 0
	t.PeriodEnd = now.AddDate(0, 1, 0)
	t.UpdatedAt = now
	t.IncrementVersion()
}

// IsInGracePeriod reports whether a grace period is currently open.
// Invariant: true only while GracePeriodEnd is set and in the future.
func (t *Tenant) IsInGracePeriod(now time.Time) bool {
	return t.GracePeriodEnd != nil && now.Before(*t.GracePeriodEnd)
}

// IsGracePeriodLapsed reports whether an opened grace period has run out
func (t *Tenant) IsGracePeriodLapsed(now time.Time) bool {
	return t.GracePeriodEnd != nil && !now.Before(*t.GracePeriodEnd)
}

// IsPeriodLapsed reports whether the current billing period has ended
func (t *Tenant) IsPeriodLapsed(now time.Time) bool {
	return now.After(t.PeriodEnd)
}

// IsTrialExpired reports whether a trial tenant has run past its trial end
func (t *Tenant) IsTrialExpired(now time.Time) bool {
	return t.Tier == TierTrial && t.TrialEndsAt != nil && now.After(*t.TrialEndsAt)
}

// RemainingResponses returns the unused portion of the monthly allowance
func (t *Tenant) RemainingResponses() int {
	remaining := t.MonthlyLimit - t.MonthlyUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Validation functions

func validateTenantName(name string) error {
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Tenant name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Tenant name cannot exceed 200 characters")
	}
	return nil
}

func validateTenantEmail(email string) error {
	if email == "" {
		return shared.NewDomainError("INVALID_EMAIL", "Tenant email cannot be empty")
	}
	if len(email) > 200 || !strings.Contains(email, "@") {
		return shared.NewDomainError("INVALID_EMAIL", "Tenant email is not valid")
	}
	return nil
}

func validateTier(tier Tier) error {
	switch tier {
	case TierFree, TierBusiness, TierPremium, TierTrial:
		return nil
	default:
		return shared.NewDomainError("INVALID_TIER", "Invalid tenant tier")
	}
}
