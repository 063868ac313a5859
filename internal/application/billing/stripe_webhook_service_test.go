package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/inkflow/backend/internal/domain/identity"
	"github.com/inkflow/backend/internal/domain/shared"
	infrabilling "github.com/inkflow/backend/internal/infrastructure/billing"
	"github.com/inkflow/backend/internal/infrastructure/cache"
)

const testWebhookSecret = "whsec_test"

// signPayload builds a Stripe-Signature header over the payload, the same
// scheme ConstructEvent verifies: HMAC-SHA256 over "<timestamp>.<payload>".
func signPayload(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(eventID, eventType, object string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"api_version": %q,
		"type": %q,
		"data": {"object": %s}
	}`, eventID, stripe.APIVersion, eventType, object))
}

func setupWebhookTest(t *testing.T) (*StripeWebhookService, *subscriptionFixture) {
	t.Helper()
	f := setupSubscriptionTest(t)

	idempotency := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = idempotency.Close() })

	service := NewStripeWebhookService(StripeWebhookServiceConfig{
		Config: &infrabilling.StripeConfig{
			SecretKey:     "sk_test_x",
			WebhookSecret: testWebhookSecret,
			IsTestMode:    true,
			PriceIDs: map[string]string{
				"business": "price_business",
				"premium":  "price_premium",
			},
		},
		Tenants:      f.tenants,
		Subscription: f.service,
		Idempotency:  idempotency,
		IdemConfig:   shared.IdempotencyConfig{Enabled: true, TTL: time.Hour},
		Logger:       zap.NewNop(),
	})
	return service, f
}

func TestStripeWebhookService_ProcessWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects a bad signature before parsing", func(t *testing.T) {
		service, _ := setupWebhookTest(t)

		payload := eventPayload("evt_sig", "invoice.paid", `{"id": "in_1"}`)
		_, err := service.ProcessWebhook(ctx, payload, "t=1,v1=deadbeef")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("invoice.paid activates the linked tenant", func(t *testing.T) {
		service, f := setupWebhookTest(t)
		tenant := f.newTenant(t, "paid@acme.test", identity.TierBusiness)
		tenant.SetStripeCustomerID("cus_paid")
		require.NoError(t, f.tenants.Save(ctx, tenant))

		periodEnd := time.Now().AddDate(0, 1, 0).Unix()
		payload := eventPayload("evt_paid", "invoice.paid", fmt.Sprintf(
			`{"id": "in_paid", "customer": "cus_paid", "subscription": "sub_paid", "period_end": %d}`, periodEnd))

		result, err := service.ProcessWebhook(ctx, payload, signPayload(payload))
		require.NoError(t, err)
		assert.True(t, result.Processed)
		assert.Equal(t, "evt_paid", result.EventID)

		found, err := f.tenants.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.BillingStatusActive, found.BillingStatus)
		assert.WithinDuration(t, time.Unix(periodEnd, 0), found.PeriodEnd, time.Second)
	})

	t.Run("redelivered event is skipped by the idempotency store", func(t *testing.T) {
		service, f := setupWebhookTest(t)
		tenant := f.newTenant(t, "redeliver@acme.test", identity.TierBusiness)
		tenant.SetStripeCustomerID("cus_re")
		require.NoError(t, f.tenants.Save(ctx, tenant))

		payload := eventPayload("evt_re", "invoice.payment_failed",
			`{"id": "in_re", "customer": "cus_re", "subscription": "sub_re"}`)

		_, err := service.ProcessWebhook(ctx, payload, signPayload(payload))
		require.NoError(t, err)

		result, err := service.ProcessWebhook(ctx, payload, signPayload(payload))
		require.NoError(t, err)
		assert.Equal(t, "Event already processed", result.Message)

		found, err := f.tenants.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, found.PaymentFailureCount)
	})

	t.Run("invoice.payment_failed opens a grace period", func(t *testing.T) {
		service, f := setupWebhookTest(t)
		tenant := f.newTenant(t, "failed@acme.test", identity.TierPremium)
		tenant.SetStripeCustomerID("cus_fail")
		require.NoError(t, f.tenants.Save(ctx, tenant))

		payload := eventPayload("evt_fail", "invoice.payment_failed",
			`{"id": "in_fail", "customer": "cus_fail", "subscription": "sub_fail"}`)

		_, err := service.ProcessWebhook(ctx, payload, signPayload(payload))
		require.NoError(t, err)

		found, err := f.tenants.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.BillingStatusInGracePeriod, found.BillingStatus)
		require.NotNil(t, found.GracePeriodEnd)
	})

	t.Run("subscription.deleted downgrades to free", func(t *testing.T) {
		service, f := setupWebhookTest(t)
		tenant := f.newTenant(t, "deleted@acme.test", identity.TierPremium)
		tenant.SetStripeSubscriptionID("sub_del")
		require.NoError(t, f.tenants.Save(ctx, tenant))

		payload := eventPayload("evt_del", "customer.subscription.deleted",
			`{"id": "sub_del", "customer": "cus_del"}`)

		_, err := service.ProcessWebhook(ctx, payload, signPayload(payload))
		require.NoError(t, err)

		found, err := f.tenants.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.TierFree, found.Tier)
		assert.Empty(t, found.StripeSubscriptionID)
	})

	t.Run("subscription.updated remaps the tier from the price ID", func(t *testing.T) {
		service, f := setupWebhookTest(t)
		tenant := f.newTenant(t, "updated@acme.test", identity.TierBusiness)
		tenant.SetStripeSubscriptionID("sub_up")
		require.NoError(t, f.tenants.Save(ctx, tenant))

		payload := eventPayload("evt_up", "customer.subscription.updated",
			`{"id": "sub_up", "customer": "cus_up", "items": {"data": [{"price": {"id": "price_premium"}}]}}`)

		_, err := service.ProcessWebhook(ctx, payload, signPayload(payload))
		require.NoError(t, err)

		found, err := f.tenants.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.TierPremium, found.Tier)
		assert.Equal(t, identity.MonthlyLimitForTier(identity.TierPremium), found.MonthlyLimit)
	})

	t.Run("unknown tenant is acknowledged without error", func(t *testing.T) {
		service, _ := setupWebhookTest(t)

		payload := eventPayload("evt_unknown", "invoice.paid",
			`{"id": "in_unknown", "customer": "cus_unknown", "subscription": "sub_unknown"}`)

		result, err := service.ProcessWebhook(ctx, payload, signPayload(payload))
		require.NoError(t, err)
		assert.True(t, result.Processed)
	})

	t.Run("unhandled event types are acknowledged", func(t *testing.T) {
		service, _ := setupWebhookTest(t)

		payload := eventPayload("evt_other", "charge.refunded", `{"id": "ch_1"}`)

		result, err := service.ProcessWebhook(ctx, payload, signPayload(payload))
		require.NoError(t, err)
		assert.Equal(t, "Event type not handled", result.Message)
	})
}
