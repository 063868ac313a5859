package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/subscription"
	"go.uber.org/zap"
)

// CheckoutSession is the subset of a Stripe checkout session the core reads
type CheckoutSession struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	PaymentStatus  string
	TenantID       string // metadata.userId
	PlanTier       string // metadata.planTier
}

// SubscriptionInfo is the subset of a Stripe subscription the core reads
type SubscriptionInfo struct {
	ID         string
	CustomerID string
	Status     string
	PeriodEnd  time.Time
	PriceID    string
}

// StripeAdapter wraps the Stripe API calls the subscription lifecycle needs
type StripeAdapter struct {
	config *StripeConfig
	logger *zap.Logger
}

// NewStripeAdapter creates a new Stripe adapter
func NewStripeAdapter(config *StripeConfig, logger *zap.Logger) (*StripeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.InitStripeClient()

	return &StripeAdapter{
		config: config,
		logger: logger,
	}, nil
}

// GetCheckoutSession retrieves a checkout session by ID
func (a *StripeAdapter) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	a.logger.Debug("Getting Stripe checkout session", zap.String("session_id", sessionID))

	sess, err := session.Get(sessionID, nil)
	if err != nil {
		a.logger.Error("Failed to get Stripe checkout session",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to get checkout session: %w", err)
	}

	out := &CheckoutSession{
		ID:            sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
		TenantID:      sess.Metadata["userId"],
		PlanTier:      sess.Metadata["planTier"],
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	}

	return out, nil
}

// GetSubscription retrieves a subscription by ID, used when a direct status
// poll races a webhook and the stored projection needs confirming
func (a *StripeAdapter) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error) {
	a.logger.Debug("Getting Stripe subscription", zap.String("subscription_id", subscriptionID))

	sub, err := subscription.Get(subscriptionID, nil)
	if err != nil {
		a.logger.Error("Failed to get Stripe subscription",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to get subscription: %w", err)
	}

	return subscriptionInfoFrom(sub), nil
}

// CancelSubscription cancels a subscription at Stripe
func (a *StripeAdapter) CancelSubscription(ctx context.Context, subscriptionID string) error {
	a.logger.Info("Canceling Stripe subscription", zap.String("subscription_id", subscriptionID))

	if _, err := subscription.Cancel(subscriptionID, nil); err != nil {
		a.logger.Error("Failed to cancel Stripe subscription",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err))
		return fmt.Errorf("stripe: failed to cancel subscription: %w", err)
	}
	return nil
}

func subscriptionInfoFrom(sub *stripe.Subscription) *SubscriptionInfo {
	info := &SubscriptionInfo{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		info.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		info.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0)
	}
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		info.PriceID = sub.Items.Data[0].Price.ID
	}
	return info
}
