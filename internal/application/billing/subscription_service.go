package billing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	domainbilling "github.com/inkflow/backend/internal/domain/billing"
	"github.com/inkflow/backend/internal/domain/identity"
)

// SubscriptionService drives tenant billing state. Transitions are decided
// by the pure state machine; this service applies the resulting effects to
// the tenant aggregate and writes exactly one lifecycle event per applied
// transition. Webhook-driven calls carry a transaction ID that makes
// redeliveries collapse against the lifecycle event log.
type SubscriptionService struct {
	tenants identity.TenantRepository
	events  domainbilling.LifecycleEventRepository
	logger  *zap.Logger
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(tenants identity.TenantRepository, events domainbilling.LifecycleEventRepository, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		tenants: tenants,
		events:  events,
		logger:  logger,
	}
}

// ActivateSubscription handles a successful payment: the tenant becomes
// active, any grace period closes, and the billing period end advances.
func (s *SubscriptionService) ActivateSubscription(ctx context.Context, tenant *identity.Tenant, periodEnd time.Time, transactionID string) error {
	duplicate, err := s.events.HasTransaction(ctx, tenant.ID, domainbilling.LifecycleEventSubscriptionActivated, transactionID)
	if err != nil {
		return fmt.Errorf("failed to check transaction log: %w", err)
	}
	if duplicate {
		s.logger.Info("Skipping replayed activation",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("transaction_id", transactionID))
		return nil
	}

	next, effects, err := Transition(tenant.BillingStatus, EventPaymentSucceeded)
	if err != nil {
		return err
	}
	if len(effects) == 0 {
		return nil
	}

	priorTier := tenant.Tier
	for _, effect := range effects {
		if effect == EffectActivate {
			tenant.ActivateSubscription(periodEnd)
		}
	}

	if err := s.saveWithEvent(ctx, tenant,
		domainbilling.NewLifecycleEvent(tenant.ID, domainbilling.LifecycleEventSubscriptionActivated, priorTier, tenant.Tier, transactionID)); err != nil {
		return err
	}

	s.logger.Info("Subscription activated",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("billing_status", string(next)),
		zap.Time("period_end", tenant.PeriodEnd))
	return nil
}

// RecordPaymentFailure handles a failed payment. The first failure opens a
// fixed grace period; failures inside an open window only bump the counter.
func (s *SubscriptionService) RecordPaymentFailure(ctx context.Context, tenant *identity.Tenant, transactionID string) error {
	duplicate, err := s.events.HasTransaction(ctx, tenant.ID, domainbilling.LifecycleEventPaymentFailed, transactionID)
	if err != nil {
		return fmt.Errorf("failed to check transaction log: %w", err)
	}
	if duplicate {
		s.logger.Info("Skipping replayed payment failure",
			zap.String("tenant_id", tenant.ID.String()),
			zap.String("transaction_id", transactionID))
		return nil
	}

	_, effects, err := Transition(tenant.BillingStatus, EventPaymentFailed)
	if err != nil {
		return err
	}
	if len(effects) == 0 {
		return nil
	}

	now := time.Now()
	opened := false
	for _, effect := range effects {
		if effect == EffectRecordFailure {
			opened = tenant.RecordPaymentFailure(now)
		}
	}

	event := domainbilling.NewLifecycleEvent(tenant.ID, domainbilling.LifecycleEventPaymentFailed, tenant.Tier, tenant.Tier, transactionID).
		WithMetadata(fmt.Sprintf(`{"failure_count":%d,"grace_opened":%t}`, tenant.PaymentFailureCount, opened))
	if err := s.saveWithEvent(ctx, tenant, event); err != nil {
		return err
	}

	if opened {
		s.logger.Warn("Grace period opened after payment failure",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Timep("grace_period_end", tenant.GracePeriodEnd))
	} else {
		s.logger.Warn("Payment failed inside open grace period",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Int("failure_count", tenant.PaymentFailureCount))
	}
	return nil
}

// UpdateSubscription re-maps the tenant's tier and limit from the static
// tier table after a plan change
func (s *SubscriptionService) UpdateSubscription(ctx context.Context, tenant *identity.Tenant, tier identity.Tier, periodEnd time.Time, transactionID string) error {
	duplicate, err := s.events.HasTransaction(ctx, tenant.ID, domainbilling.LifecycleEventSubscriptionUpdated, transactionID)
	if err != nil {
		return fmt.Errorf("failed to check transaction log: %w", err)
	}
	if duplicate {
		return nil
	}

	_, effects, err := Transition(tenant.BillingStatus, EventSubscriptionUpdated)
	if err != nil {
		return err
	}
	if len(effects) == 0 {
		return nil
	}

	priorTier := tenant.Tier
	for _, effect := range effects {
		if effect == EffectRemapTier {
			if err := tenant.ChangeTier(tier); err != nil {
				return err
			}
			if !periodEnd.IsZero() {
				tenant.PeriodEnd = periodEnd
			}
		}
	}

	if err := s.saveWithEvent(ctx, tenant,
		domainbilling.NewLifecycleEvent(tenant.ID, domainbilling.LifecycleEventSubscriptionUpdated, priorTier, tenant.Tier, transactionID)); err != nil {
		return err
	}

	s.logger.Info("Subscription updated",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("prior_tier", string(priorTier)),
		zap.String("new_tier", string(tenant.Tier)))
	return nil
}

// CancelSubscription handles subscription deletion: the tenant lands on
// the free tier, active, with the external subscription reference cleared
func (s *SubscriptionService) CancelSubscription(ctx context.Context, tenant *identity.Tenant, transactionID string) error {
	duplicate, err := s.events.HasTransaction(ctx, tenant.ID, domainbilling.LifecycleEventSubscriptionCanceled, transactionID)
	if err != nil {
		return fmt.Errorf("failed to check transaction log: %w", err)
	}
	if duplicate {
		return nil
	}

	_, effects, err := Transition(tenant.BillingStatus, EventSubscriptionDeleted)
	if err != nil {
		return err
	}

	priorTier := tenant.Tier
	for _, effect := range effects {
		if effect == EffectDowngradeToFree {
			tenant.DowngradeToFree()
		}
	}

	if err := s.saveWithEvent(ctx, tenant,
		domainbilling.NewLifecycleEvent(tenant.ID, domainbilling.LifecycleEventSubscriptionCanceled, priorTier, tenant.Tier, transactionID)); err != nil {
		return err
	}

	s.logger.Info("Subscription canceled, tenant downgraded to free",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("prior_tier", string(priorTier)))
	return nil
}

// DowngradeAfterGrace downgrades a tenant whose grace period ran out
// without a successful payment. Called from the sweep; idempotent because
// a second sweep sees the tenant already active on the free tier.
func (s *SubscriptionService) DowngradeAfterGrace(ctx context.Context, tenant *identity.Tenant) error {
	_, effects, err := Transition(tenant.BillingStatus, EventGracePeriodLapsed)
	if err != nil {
		return err
	}
	if len(effects) == 0 {
		return nil
	}

	priorTier := tenant.Tier
	for _, effect := range effects {
		if effect == EffectDowngradeToFree {
			tenant.DowngradeToFree()
		}
	}

	if err := s.saveWithEvent(ctx, tenant,
		domainbilling.NewLifecycleEvent(tenant.ID, domainbilling.LifecycleEventDowngradedAfterGrace, priorTier, tenant.Tier, "")); err != nil {
		return err
	}

	s.logger.Warn("Tenant downgraded after grace period lapsed",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("prior_tier", string(priorTier)))
	return nil
}

// ExpireTrial downgrades a trial tenant whose trial window has closed
func (s *SubscriptionService) ExpireTrial(ctx context.Context, tenant *identity.Tenant) error {
	_, effects, err := Transition(tenant.BillingStatus, EventTrialExpired)
	if err != nil {
		return err
	}
	if len(effects) == 0 {
		return nil
	}

	priorTier := tenant.Tier
	for _, effect := range effects {
		if effect == EffectDowngradeToFree {
			tenant.DowngradeToFree()
		}
	}

	if err := s.saveWithEvent(ctx, tenant,
		domainbilling.NewLifecycleEvent(tenant.ID, domainbilling.LifecycleEventTrialExpired, priorTier, tenant.Tier, "")); err != nil {
		return err
	}

	s.logger.Info("Trial expired, tenant downgraded to free",
		zap.String("tenant_id", tenant.ID.String()))
	return nil
}

// saveWithEvent persists the tenant and appends the lifecycle record.
// The append happens after the save; a crash between the two loses the
// audit record but never the state change.
func (s *SubscriptionService) saveWithEvent(ctx context.Context, tenant *identity.Tenant, event *domainbilling.LifecycleEvent) error {
	if err := s.tenants.Save(ctx, tenant); err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	tenant.ClearDomainEvents()

	if err := s.events.Append(ctx, event); err != nil {
		return fmt.Errorf("failed to append lifecycle event: %w", err)
	}
	return nil
}
