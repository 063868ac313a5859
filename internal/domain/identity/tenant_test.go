package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTenant(t *testing.T) {
	t.Run("creates free tier tenant with defaults", func(t *testing.T) {
		tenant, err := NewTenant("Acme Copy", "team@acme.test")
		require.NoError(t, err)

		assert.Equal(t, TierFree, tenant.Tier)
		assert.Equal(t, 25, tenant.MonthlyLimit)
		assert.Equal(t, 0, tenant.MonthlyUsed)
		assert.Equal(t, BillingStatusActive, tenant.BillingStatus)
		assert.Nil(t, tenant.GracePeriodEnd)
		assert.True(t, tenant.PeriodEnd.After(time.Now()))
		assert.Len(t, tenant.GetDomainEvents(), 1)
	})

	t.Run("lowercases email", func(t *testing.T) {
		tenant, err := NewTenant("Acme", "Team@Acme.Test")
		require.NoError(t, err)
		assert.Equal(t, "team@acme.test", tenant.Email)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewTenant("", "team@acme.test")
		assert.Error(t, err)
	})

	t.Run("rejects invalid email", func(t *testing.T) {
		_, err := NewTenant("Acme", "not-an-email")
		assert.Error(t, err)
	})
}

func TestNewTrialTenant(t *testing.T) {
	t.Run("trial gets premium-sized limit", func(t *testing.T) {
		tenant, err := NewTrialTenant("Acme", "team@acme.test", 14)
		require.NoError(t, err)

		assert.Equal(t, TierTrial, tenant.Tier)
		assert.Equal(t, MonthlyLimitForTier(TierPremium), tenant.MonthlyLimit)
		require.NotNil(t, tenant.TrialEndsAt)
		assert.False(t, tenant.IsTrialExpired(time.Now()))
		assert.True(t, tenant.IsTrialExpired(time.Now().AddDate(0, 0, 15)))
	})

	t.Run("rejects non-positive trial days", func(t *testing.T) {
		_, err := NewTrialTenant("Acme", "team@acme.test", 0)
		assert.Error(t, err)
	})
}

func TestMonthlyLimitForTier(t *testing.T) {
	assert.Equal(t, 25, MonthlyLimitForTier(TierFree))
	assert.Equal(t, 250, MonthlyLimitForTier(TierBusiness))
	assert.Equal(t, 1000, MonthlyLimitForTier(TierPremium))
	assert.Equal(t, 1000, MonthlyLimitForTier(TierTrial))
}

func TestTenant_ChangeTier(t *testing.T) {
	tenant, err := NewTenant("Acme", "team@acme.test")
	require.NoError(t, err)
	tenant.ClearDomainEvents()

	t.Run("remaps limit from tier table", func(t *testing.T) {
		require.NoError(t, tenant.ChangeTier(TierBusiness))
		assert.Equal(t, TierBusiness, tenant.Tier)
		assert.Equal(t, 250, tenant.MonthlyLimit)
		assert.Len(t, tenant.GetDomainEvents(), 1)
	})

	t.Run("same tier emits no event", func(t *testing.T) {
		tenant.ClearDomainEvents()
		require.NoError(t, tenant.ChangeTier(TierBusiness))
		assert.Empty(t, tenant.GetDomainEvents())
	})

	t.Run("rejects unknown tier", func(t *testing.T) {
		assert.Error(t, tenant.ChangeTier(Tier("platinum")))
	})
}

func TestTenant_RecordPaymentFailure(t *testing.T) {
	t.Run("first failure opens fixed grace period", func(t *testing.T) {
		tenant, err := NewTenant("Acme", "team@acme.test")
		require.NoError(t, err)
		require.NoError(t, tenant.ChangeTier(TierBusiness))

		now := time.Now()
		opened := tenant.RecordPaymentFailure(now)

		assert.True(t, opened)
		assert.Equal(t, BillingStatusInGracePeriod, tenant.BillingStatus)
		assert.Equal(t, 1, tenant.PaymentFailureCount)
		require.NotNil(t, tenant.GracePeriodEnd)
		assert.WithinDuration(t, now.AddDate(0, 0, GracePeriodDays), *tenant.GracePeriodEnd, time.Second)
	})

	t.Run("later failures never extend the open window", func(t *testing.T) {
		tenant, err := NewTenant("Acme", "team@acme.test")
		require.NoError(t, err)

		now := time.Now()
		require.True(t, tenant.RecordPaymentFailure(now))
		firstEnd := *tenant.GracePeriodEnd

		opened := tenant.RecordPaymentFailure(now.AddDate(0, 0, 5))
		assert.False(t, opened)
		assert.Equal(t, firstEnd, *tenant.GracePeriodEnd)
		assert.Equal(t, 2, tenant.PaymentFailureCount)
	})

	t.Run("a new window can open after the old one lapses", func(t *testing.T) {
		tenant, err := NewTenant("Acme", "team@acme.test")
		require.NoError(t, err)

		now := time.Now()
		require.True(t, tenant.RecordPaymentFailure(now))

		afterLapse := now.AddDate(0, 0, GracePeriodDays+1)
		assert.True(t, tenant.IsGracePeriodLapsed(afterLapse))
		assert.True(t, tenant.RecordPaymentFailure(afterLapse))
	})
}

func TestTenant_ActivateSubscription(t *testing.T) {
	tenant, err := NewTenant("Acme", "team@acme.test")
	require.NoError(t, err)
	require.True(t, tenant.RecordPaymentFailure(time.Now()))

	periodEnd := time.Now().AddDate(0, 1, 0)
	tenant.ActivateSubscription(periodEnd)

	assert.Equal(t, BillingStatusActive, tenant.BillingStatus)
	assert.Nil(t, tenant.GracePeriodEnd)
	assert.Equal(t, 0, tenant.PaymentFailureCount)
	assert.Equal(t, periodEnd, tenant.PeriodEnd)
}

func TestTenant_DowngradeToFree(t *testing.T) {
	tenant, err := NewTenant("Acme", "team@acme.test")
	require.NoError(t, err)
	require.NoError(t, tenant.ChangeTier(TierPremium))
	tenant.SetStripeSubscriptionID("sub_123")
	require.True(t, tenant.RecordPaymentFailure(time.Now()))

	tenant.DowngradeToFree()

	assert.Equal(t, TierFree, tenant.Tier)
	assert.Equal(t, 25, tenant.MonthlyLimit)
	assert.Equal(t, BillingStatusActive, tenant.BillingStatus)
	assert.Nil(t, tenant.GracePeriodEnd)
	assert.Empty(t, tenant.StripeSubscriptionID)
	assert.Equal(t, 0, tenant.PaymentFailureCount)
}

func TestTenant_RolloverPeriod(t *testing.T) {
	tenant, err := NewTenant("Acme", "team@acme.test")
	require.NoError(t, err)
	tenant.MonthlyUsed = 20

	now := time.Now()
	tenant.RolloverPeriod(now)

	assert.Equal(t, 0, tenant.MonthlyUsed)
	assert.WithinDuration(t, now.AddDate(0, 1, 0), tenant.PeriodEnd, time.Second)
}

func TestTenant_RemainingResponses(t *testing.T) {
	tenant, err := NewTenant("Acme", "team@acme.test")
	require.NoError(t, err)

	assert.Equal(t, 25, tenant.RemainingResponses())

	tenant.MonthlyUsed = 25
	assert.Equal(t, 0, tenant.RemainingResponses())

	// A limit lowered mid-period can leave used above limit.
	tenant.MonthlyUsed = 40
	assert.Equal(t, 0, tenant.RemainingResponses())
}
