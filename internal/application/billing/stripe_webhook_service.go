package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/inkflow/backend/internal/domain/identity"
	"github.com/inkflow/backend/internal/domain/shared"
	infrabilling "github.com/inkflow/backend/internal/infrastructure/billing"
)

// StripeWebhookService verifies and processes Stripe webhook events.
//
// Verification happens before any parsing: ConstructEvent checks the
// signature over the raw body. Processing is idempotent at two levels:
// the event ID is claimed in the idempotency store, and every state
// transition is deduped against the lifecycle event log, so a redelivery
// that slips past the store (TTL expiry, store swap) still cannot apply
// twice.
type StripeWebhookService struct {
	config       *infrabilling.StripeConfig
	adapter      *infrabilling.StripeAdapter
	tenants      identity.TenantRepository
	subscription *SubscriptionService
	idempotency  shared.IdempotencyStore
	idemConfig   shared.IdempotencyConfig
	logger       *zap.Logger
}

// StripeWebhookServiceConfig contains configuration for StripeWebhookService
type StripeWebhookServiceConfig struct {
	Config       *infrabilling.StripeConfig
	Adapter      *infrabilling.StripeAdapter
	Tenants      identity.TenantRepository
	Subscription *SubscriptionService
	Idempotency  shared.IdempotencyStore
	IdemConfig   shared.IdempotencyConfig
	Logger       *zap.Logger
}

// NewStripeWebhookService creates a new StripeWebhookService
func NewStripeWebhookService(cfg StripeWebhookServiceConfig) *StripeWebhookService {
	return &StripeWebhookService{
		config:       cfg.Config,
		adapter:      cfg.Adapter,
		tenants:      cfg.Tenants,
		subscription: cfg.Subscription,
		idempotency:  cfg.Idempotency,
		idemConfig:   cfg.IdemConfig,
		logger:       cfg.Logger,
	}
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// ErrInvalidSignature is returned when signature verification fails.
// The handler maps it to 403; the event is never parsed.
var ErrInvalidSignature = shared.NewDomainError("INVALID_SIGNATURE", "Webhook signature verification failed")

// ProcessWebhook verifies the signature over the raw payload and applies
// the event
func (s *StripeWebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.config.WebhookSecret)
	if err != nil {
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return nil, ErrInvalidSignature
	}

	result := &WebhookResult{
		EventID:   event.ID,
		EventType: string(event.Type),
		Processed: true,
	}

	if s.idemConfig.Enabled && s.idempotency != nil {
		fresh, err := s.idempotency.MarkProcessed(ctx, event.ID, s.idemConfig.TTL)
		if err != nil {
			// The lifecycle log still dedups transitions, so a store
			// outage degrades to slower replay handling, not double
			// application.
			s.logger.Warn("Idempotency store unavailable, relying on transaction log",
				zap.String("event_id", event.ID),
				zap.Error(err))
		} else if !fresh {
			s.logger.Info("Skipping already-processed webhook event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
			result.Message = "Event already processed"
			return result, nil
		}
	}

	s.logger.Info("Processing Stripe webhook event",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	switch event.Type {
	case "checkout.session.completed":
		err = s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		err = s.handleSubscriptionChanged(ctx, event)
	case "customer.subscription.deleted":
		err = s.handleSubscriptionDeleted(ctx, event)
	case "invoice.paid":
		err = s.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		err = s.handleInvoicePaymentFailed(ctx, event)
	default:
		s.logger.Debug("Unhandled webhook event type",
			zap.String("event_type", string(event.Type)))
		result.Message = "Event type not handled"
	}

	if err != nil {
		s.logger.Error("Failed to process webhook event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		result.Processed = false
		result.Message = err.Error()
		return result, err
	}

	return result, nil
}

// handleCheckoutCompleted links the tenant from the checkout metadata to
// its new Stripe customer and subscription, and activates the chosen tier
func (s *StripeWebhookService) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	checkout := &infrabilling.CheckoutSession{
		ID:            sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
		TenantID:      sess.Metadata["userId"],
		PlanTier:      sess.Metadata["planTier"],
	}
	if sess.Customer != nil {
		checkout.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		checkout.SubscriptionID = sess.Subscription.ID
	}

	// Some payloads arrive without the subscription expanded; re-fetch the
	// session through the API before giving up on the linkage.
	if checkout.SubscriptionID == "" && s.adapter != nil {
		fetched, err := s.adapter.GetCheckoutSession(ctx, sess.ID)
		if err != nil {
			return err
		}
		checkout = fetched
	}

	if checkout.TenantID == "" {
		s.logger.Warn("Checkout session has no tenant metadata, skipping",
			zap.String("session_id", checkout.ID))
		return nil
	}

	tenant, err := s.findTenantByRef(ctx, checkout.TenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return nil
	}

	if checkout.CustomerID != "" {
		tenant.SetStripeCustomerID(checkout.CustomerID)
	}
	if checkout.SubscriptionID != "" {
		tenant.SetStripeSubscriptionID(checkout.SubscriptionID)
	}

	tier := identity.Tier(checkout.PlanTier)
	if checkout.PlanTier == "" {
		tier = tenant.Tier
	}
	return s.subscription.UpdateSubscription(ctx, tenant, tier, time.Time{}, event.ID)
}

// handleSubscriptionChanged handles created and updated subscription events
func (s *StripeWebhookService) handleSubscriptionChanged(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	tenant, err := s.findTenantForSubscription(ctx, &sub)
	if err != nil || tenant == nil {
		return err
	}

	if tenant.StripeSubscriptionID != sub.ID {
		tenant.SetStripeSubscriptionID(sub.ID)
	}

	tier := s.tierForSubscription(&sub, tenant.Tier)

	var periodEnd time.Time
	if sub.CurrentPeriodEnd > 0 {
		periodEnd = time.Unix(sub.CurrentPeriodEnd, 0)
	}

	return s.subscription.UpdateSubscription(ctx, tenant, tier, periodEnd, event.ID)
}

// handleSubscriptionDeleted downgrades the tenant to the free tier
func (s *StripeWebhookService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	tenant, err := s.findTenantForSubscription(ctx, &sub)
	if err != nil || tenant == nil {
		return err
	}

	return s.subscription.CancelSubscription(ctx, tenant, event.ID)
}

// handleInvoicePaid marks the subscription paid up for a new period
func (s *StripeWebhookService) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	if invoice.Subscription == nil {
		s.logger.Debug("Invoice is not for a subscription, skipping",
			zap.String("invoice_id", invoice.ID))
		return nil
	}

	tenant, err := s.findTenantForInvoice(ctx, &invoice)
	if err != nil || tenant == nil {
		return err
	}

	var periodEnd time.Time
	if invoice.PeriodEnd > 0 {
		periodEnd = time.Unix(invoice.PeriodEnd, 0)
	}

	return s.subscription.ActivateSubscription(ctx, tenant, periodEnd, invoice.ID)
}

// handleInvoicePaymentFailed records the failure and opens a grace period
// if none is running
func (s *StripeWebhookService) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	if invoice.Subscription == nil {
		s.logger.Debug("Invoice is not for a subscription, skipping",
			zap.String("invoice_id", invoice.ID))
		return nil
	}

	tenant, err := s.findTenantForInvoice(ctx, &invoice)
	if err != nil || tenant == nil {
		return err
	}

	return s.subscription.RecordPaymentFailure(ctx, tenant, invoice.ID)
}

// tierForSubscription resolves the tier from subscription metadata first,
// then from the configured price IDs
func (s *StripeWebhookService) tierForSubscription(sub *stripe.Subscription, fallback identity.Tier) identity.Tier {
	if planTier, ok := sub.Metadata["planTier"]; ok && planTier != "" {
		return identity.Tier(planTier)
	}
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		if tier, ok := s.config.TierForPriceID(sub.Items.Data[0].Price.ID); ok {
			return identity.Tier(tier)
		}
	}
	return fallback
}

func parseTenantID(ref string) (uuid.UUID, error) {
	return uuid.Parse(ref)
}

// findTenantByRef resolves a tenant from the userId checkout metadata
func (s *StripeWebhookService) findTenantByRef(ctx context.Context, ref string) (*identity.Tenant, error) {
	id, err := parseTenantID(ref)
	if err != nil {
		s.logger.Warn("Checkout metadata userId is not a tenant ID", zap.String("user_id", ref))
		return nil, nil
	}

	tenant, err := s.tenants.FindByID(ctx, id)
	if err != nil {
		if err == shared.ErrNotFound {
			// Webhooks may reference customers that are not in our system,
			// e.g. from a shared Stripe account. Acknowledge so Stripe
			// stops redelivering.
			s.logger.Warn("Tenant not found for checkout session", zap.String("user_id", ref))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tenant: %w", err)
	}
	return tenant, nil
}

// findTenantForSubscription resolves the tenant by subscription ID, then
// by customer ID
func (s *StripeWebhookService) findTenantForSubscription(ctx context.Context, sub *stripe.Subscription) (*identity.Tenant, error) {
	tenant, err := s.tenants.FindByStripeSubscriptionID(ctx, sub.ID)
	if err == nil {
		return tenant, nil
	}
	if err != shared.ErrNotFound {
		return nil, fmt.Errorf("failed to find tenant: %w", err)
	}

	if sub.Customer == nil || sub.Customer.ID == "" {
		s.logger.Warn("Tenant not found for subscription and no customer ID available",
			zap.String("subscription_id", sub.ID))
		return nil, nil
	}

	tenant, err = s.tenants.FindByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		if err == shared.ErrNotFound {
			s.logger.Warn("Tenant not found for subscription",
				zap.String("subscription_id", sub.ID),
				zap.String("customer_id", sub.Customer.ID))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tenant: %w", err)
	}
	return tenant, nil
}

// findTenantForInvoice resolves the tenant by the invoice's customer ID
func (s *StripeWebhookService) findTenantForInvoice(ctx context.Context, invoice *stripe.Invoice) (*identity.Tenant, error) {
	if invoice.Customer == nil || invoice.Customer.ID == "" {
		s.logger.Warn("Invoice has no customer ID, skipping",
			zap.String("invoice_id", invoice.ID))
		return nil, nil
	}

	tenant, err := s.tenants.FindByStripeCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		if err == shared.ErrNotFound {
			s.logger.Warn("Tenant not found for customer",
				zap.String("customer_id", invoice.Customer.ID))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tenant: %w", err)
	}
	return tenant, nil
}
