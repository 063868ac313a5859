package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/inkflow/backend/internal/domain/billing"
	"github.com/inkflow/backend/internal/domain/identity"
	"github.com/inkflow/backend/internal/domain/shared"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&identity.Tenant{}, &billing.UsageRecord{}, &billing.LifecycleEvent{})
	require.NoError(t, err)

	return db
}

func newTestTenant(t *testing.T, repo *GormTenantRepository, tier identity.Tier) *identity.Tenant {
	t.Helper()
	tenant, err := identity.NewTenant("Acme", uuid.NewString()+"@acme.test")
	require.NoError(t, err)
	require.NoError(t, tenant.ChangeTier(tier))
	tenant.ClearDomainEvents()
	require.NoError(t, repo.Save(context.Background(), tenant))
	return tenant
}

func TestGormTenantRepository_FindAndSave(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTenantRepository(db)
	ctx := context.Background()

	t.Run("round-trips a tenant", func(t *testing.T) {
		tenant := newTestTenant(t, repo, identity.TierBusiness)

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.ID, found.ID)
		assert.Equal(t, identity.TierBusiness, found.Tier)
		assert.Equal(t, 250, found.MonthlyLimit)
	})

	t.Run("missing tenant returns ErrNotFound", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("finds by email case-insensitively", func(t *testing.T) {
		tenant, err := identity.NewTenant("Acme", "casetest@acme.test")
		require.NoError(t, err)
		tenant.ClearDomainEvents()
		require.NoError(t, repo.Save(ctx, tenant))

		found, err := repo.FindByEmail(ctx, "CaseTest@Acme.Test")
		require.NoError(t, err)
		assert.Equal(t, tenant.ID, found.ID)
	})

	t.Run("finds by stripe linkage", func(t *testing.T) {
		tenant := newTestTenant(t, repo, identity.TierPremium)
		tenant.SetStripeCustomerID("cus_777")
		tenant.SetStripeSubscriptionID("sub_777")
		require.NoError(t, repo.Save(ctx, tenant))

		byCustomer, err := repo.FindByStripeCustomerID(ctx, "cus_777")
		require.NoError(t, err)
		assert.Equal(t, tenant.ID, byCustomer.ID)

		bySub, err := repo.FindByStripeSubscriptionID(ctx, "sub_777")
		require.NoError(t, err)
		assert.Equal(t, tenant.ID, bySub.ID)
	})
}

func TestGormTenantRepository_IncrementUsage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTenantRepository(db)
	ctx := context.Background()

	t.Run("consumes up to the limit, then refuses", func(t *testing.T) {
		tenant := newTestTenant(t, repo, identity.TierFree)

		for i := 0; i < 25; i++ {
			ok, err := repo.IncrementUsage(ctx, tenant.ID)
			require.NoError(t, err)
			require.True(t, ok, "unit %d should be available", i+1)
		}

		ok, err := repo.IncrementUsage(ctx, tenant.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, 25, found.MonthlyUsed)
	})

	t.Run("unknown tenant consumes nothing", func(t *testing.T) {
		ok, err := repo.IncrementUsage(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGormTenantRepository_DecrementUsage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTenantRepository(db)
	ctx := context.Background()

	t.Run("returns a consumed unit", func(t *testing.T) {
		tenant := newTestTenant(t, repo, identity.TierFree)

		ok, err := repo.IncrementUsage(ctx, tenant.ID)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, repo.DecrementUsage(ctx, tenant.ID))

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, found.MonthlyUsed)
	})

	t.Run("never goes below zero", func(t *testing.T) {
		tenant := newTestTenant(t, repo, identity.TierFree)

		require.NoError(t, repo.DecrementUsage(ctx, tenant.ID))
		require.NoError(t, repo.DecrementUsage(ctx, tenant.ID))

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, found.MonthlyUsed)
	})
}

func TestGormTenantRepository_ResetPeriod(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTenantRepository(db)
	ctx := context.Background()

	t.Run("resets usage and advances the period", func(t *testing.T) {
		tenant := newTestTenant(t, repo, identity.TierFree)
		ok, err := repo.IncrementUsage(ctx, tenant.ID)
		require.NoError(t, err)
		require.True(t, ok)

		newEnd := time.Now().AddDate(0, 1, 0)
		require.NoError(t, repo.ResetPeriod(ctx, tenant.ID, tenant.PeriodEnd, newEnd))

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, found.MonthlyUsed)
		assert.WithinDuration(t, newEnd, found.PeriodEnd, time.Second)
	})

	t.Run("stale previous period end is a no-op", func(t *testing.T) {
		tenant := newTestTenant(t, repo, identity.TierFree)
		ok, err := repo.IncrementUsage(ctx, tenant.ID)
		require.NoError(t, err)
		require.True(t, ok)

		stale := tenant.PeriodEnd.Add(-time.Hour)
		require.NoError(t, repo.ResetPeriod(ctx, tenant.ID, stale, time.Now().AddDate(0, 1, 0)))

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, found.MonthlyUsed)
	})
}

func TestGormTenantRepository_Sweepers(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormTenantRepository(db)
	ctx := context.Background()

	t.Run("finds tenants in grace period", func(t *testing.T) {
		inGrace := newTestTenant(t, repo, identity.TierBusiness)
		require.True(t, inGrace.RecordPaymentFailure(time.Now()))
		inGrace.ClearDomainEvents()
		require.NoError(t, repo.Save(ctx, inGrace))

		newTestTenant(t, repo, identity.TierBusiness)

		tenants, err := repo.FindInGracePeriod(ctx)
		require.NoError(t, err)
		require.Len(t, tenants, 1)
		assert.Equal(t, inGrace.ID, tenants[0].ID)
	})

	t.Run("finds expired trials only", func(t *testing.T) {
		expired, err := identity.NewTrialTenant("Old", "old-trial@acme.test", 7)
		require.NoError(t, err)
		past := time.Now().AddDate(0, 0, -1)
		expired.TrialEndsAt = &past
		expired.ClearDomainEvents()
		require.NoError(t, repo.Save(ctx, expired))

		active, err := identity.NewTrialTenant("New", "new-trial@acme.test", 7)
		require.NoError(t, err)
		active.ClearDomainEvents()
		require.NoError(t, repo.Save(ctx, active))

		tenants, err := repo.FindExpiredTrials(ctx, time.Now())
		require.NoError(t, err)
		require.Len(t, tenants, 1)
		assert.Equal(t, expired.ID, tenants[0].ID)
	})
}
