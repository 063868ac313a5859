package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	domainbilling "github.com/inkflow/backend/internal/domain/billing"
	"github.com/inkflow/backend/internal/domain/identity"
	"github.com/inkflow/backend/internal/domain/shared"
	"github.com/inkflow/backend/internal/infrastructure/persistence"
)

func setupLedgerTest(t *testing.T) (*QuotaLedger, *persistence.GormTenantRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&identity.Tenant{}, &domainbilling.UsageRecord{}, &domainbilling.LifecycleEvent{}))

	repo := persistence.NewGormTenantRepository(db)
	return NewQuotaLedger(repo, zap.NewNop()), repo
}

func saveTenant(t *testing.T, repo *persistence.GormTenantRepository, tenant *identity.Tenant) {
	t.Helper()
	tenant.ClearDomainEvents()
	require.NoError(t, repo.Save(context.Background(), tenant))
}

func TestQuotaLedger_Reserve(t *testing.T) {
	ctx := context.Background()

	t.Run("reserve consumes one unit", func(t *testing.T) {
		ledger, repo := setupLedgerTest(t)
		tenant, err := identity.NewTenant("Acme", "reserve@acme.test")
		require.NoError(t, err)
		saveTenant(t, repo, tenant)

		reservation, err := ledger.Reserve(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.ID, reservation.TenantID)
		assert.NotEqual(t, uuid.Nil, reservation.AttemptID)

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, found.MonthlyUsed)
	})

	t.Run("release returns the unit, once", func(t *testing.T) {
		ledger, repo := setupLedgerTest(t)
		tenant, err := identity.NewTenant("Acme", "release@acme.test")
		require.NoError(t, err)
		saveTenant(t, repo, tenant)

		reservation, err := ledger.Reserve(ctx, tenant.ID)
		require.NoError(t, err)

		reservation.Release(ctx)
		reservation.Release(ctx)

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, found.MonthlyUsed)
		assert.False(t, reservation.Committed())
	})

	t.Run("commit keeps the unit and disarms release", func(t *testing.T) {
		ledger, repo := setupLedgerTest(t)
		tenant, err := identity.NewTenant("Acme", "commit@acme.test")
		require.NoError(t, err)
		saveTenant(t, repo, tenant)

		reservation, err := ledger.Reserve(ctx, tenant.ID)
		require.NoError(t, err)

		reservation.Commit()
		reservation.Release(ctx)

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, found.MonthlyUsed)
		assert.True(t, reservation.Committed())
	})

	t.Run("rejects when the allowance is exhausted", func(t *testing.T) {
		ledger, repo := setupLedgerTest(t)
		tenant, err := identity.NewTenant("Acme", "limit@acme.test")
		require.NoError(t, err)
		tenant.MonthlyUsed = tenant.MonthlyLimit - 1
		saveTenant(t, repo, tenant)

		_, err = ledger.Reserve(ctx, tenant.ID)
		require.NoError(t, err)

		_, err = ledger.Reserve(ctx, tenant.ID)
		assert.ErrorIs(t, err, shared.ErrLimitReached)
	})

	t.Run("rejects canceled tenants", func(t *testing.T) {
		ledger, repo := setupLedgerTest(t)
		tenant, err := identity.NewTenant("Acme", "canceled@acme.test")
		require.NoError(t, err)
		require.NoError(t, tenant.ChangeTier(identity.TierBusiness))
		tenant.MarkCanceled()
		saveTenant(t, repo, tenant)

		_, err = ledger.Reserve(ctx, tenant.ID)
		assert.ErrorIs(t, err, shared.ErrSubscriptionExpired)
	})

	t.Run("unknown tenant returns not found", func(t *testing.T) {
		ledger, _ := setupLedgerTest(t)

		_, err := ledger.Reserve(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestQuotaLedger_LazyRollover(t *testing.T) {
	ctx := context.Background()

	t.Run("free tier rolls over a lapsed period", func(t *testing.T) {
		ledger, repo := setupLedgerTest(t)
		tenant, err := identity.NewTenant("Acme", "rollover@acme.test")
		require.NoError(t, err)
		tenant.MonthlyUsed = tenant.MonthlyLimit
		tenant.PeriodEnd = time.Now().AddDate(0, 0, -1)
		saveTenant(t, repo, tenant)

		reservation, err := ledger.Reserve(ctx, tenant.ID)
		require.NoError(t, err)
		reservation.Commit()

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, found.MonthlyUsed)
		assert.True(t, found.PeriodEnd.After(time.Now()))
	})

	t.Run("lapsed paid tier without grace is expired", func(t *testing.T) {
		ledger, repo := setupLedgerTest(t)
		tenant, err := identity.NewTenant("Acme", "lapsed-paid@acme.test")
		require.NoError(t, err)
		require.NoError(t, tenant.ChangeTier(identity.TierBusiness))
		tenant.PeriodEnd = time.Now().AddDate(0, 0, -1)
		saveTenant(t, repo, tenant)

		_, err = ledger.Reserve(ctx, tenant.ID)
		assert.ErrorIs(t, err, shared.ErrSubscriptionExpired)
	})

	t.Run("lapsed paid tier inside grace keeps serving", func(t *testing.T) {
		ledger, repo := setupLedgerTest(t)
		tenant, err := identity.NewTenant("Acme", "grace-paid@acme.test")
		require.NoError(t, err)
		require.NoError(t, tenant.ChangeTier(identity.TierBusiness))
		tenant.PeriodEnd = time.Now().AddDate(0, 0, -1)
		require.True(t, tenant.RecordPaymentFailure(time.Now()))
		saveTenant(t, repo, tenant)

		reservation, err := ledger.Reserve(ctx, tenant.ID)
		require.NoError(t, err)
		reservation.Commit()

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, found.MonthlyUsed)
	})
}
