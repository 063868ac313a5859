package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkflow/backend/internal/domain/identity"
	"github.com/inkflow/backend/internal/domain/shared"
)

// QuotaLedger meters paid generation calls against the tenant's monthly
// allowance. Reserve consumes one unit up front; the caller either commits
// the reservation after a successful generation or releases it so a failed
// call never burns allowance.
type QuotaLedger struct {
	tenants identity.TenantRepository
	logger  *zap.Logger
}

// NewQuotaLedger creates a new quota ledger
func NewQuotaLedger(tenants identity.TenantRepository, logger *zap.Logger) *QuotaLedger {
	return &QuotaLedger{
		tenants: tenants,
		logger:  logger,
	}
}

// Reservation is a scoped hold on one unit of allowance. Exactly one of
// Commit or Release takes effect; later calls on the same handle are no-ops.
// Callers defer Release and call Commit on success.
type Reservation struct {
	AttemptID uuid.UUID
	TenantID  uuid.UUID

	ledger    *QuotaLedger
	settle    sync.Once
	committed bool
}

// Reserve consumes one unit of tenantID's monthly allowance.
//
// If the billing period has lapsed, the ledger first applies a lazy
// rollover (usage reset, period advance) for tenants still entitled to a
// fresh period; a lapsed non-free tenant with no open grace period is
// rejected with SUBSCRIPTION_EXPIRED instead. The consume itself is a
// conditional update in the database, so concurrent requests racing for
// the last unit cannot both win.
func (l *QuotaLedger) Reserve(ctx context.Context, tenantID uuid.UUID) (*Reservation, error) {
	tenant, err := l.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	if tenant.BillingStatus == identity.BillingStatusCanceled {
		return nil, shared.ErrSubscriptionExpired
	}

	if tenant.IsPeriodLapsed(now) {
		if !l.entitledToRollover(tenant, now) {
			return nil, shared.ErrSubscriptionExpired
		}
		if err := l.tenants.ResetPeriod(ctx, tenantID, tenant.PeriodEnd, now.AddDate(0, 1, 0)); err != nil {
			return nil, err
		}
		l.logger.Info("Billing period rolled over",
			zap.String("tenant_id", tenantID.String()),
			zap.Time("previous_period_end", tenant.PeriodEnd))
	}

	consumed, err := l.tenants.IncrementUsage(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, shared.ErrLimitReached
	}

	return &Reservation{
		AttemptID: uuid.New(),
		TenantID:  tenantID,
		ledger:    l,
	}, nil
}

// entitledToRollover decides whether a lapsed period renews locally.
// Free-tier allowances renew unconditionally. Paid tiers renew only from
// payment webhooks; a lapsed paid period is served only while a grace
// period is open.
func (l *QuotaLedger) entitledToRollover(tenant *identity.Tenant, now time.Time) bool {
	if tenant.Tier == identity.TierFree {
		return true
	}
	return tenant.IsInGracePeriod(now)
}

// Commit keeps the reserved unit consumed. Idempotent; a Release after
// Commit does nothing.
func (r *Reservation) Commit() {
	r.settle.Do(func() {
		r.committed = true
	})
}

// Release returns the reserved unit after a failed generation. Idempotent
// per attempt: the handle settles once, so retries of a deferred Release
// cannot decrement twice.
func (r *Reservation) Release(ctx context.Context) {
	r.settle.Do(func() {
		if err := r.ledger.tenants.DecrementUsage(ctx, r.TenantID); err != nil {
			r.ledger.logger.Error("Failed to release quota reservation",
				zap.String("tenant_id", r.TenantID.String()),
				zap.String("attempt_id", r.AttemptID.String()),
				zap.Error(err))
		}
	})
}

// Committed reports whether the reservation settled as committed
func (r *Reservation) Committed() bool {
	return r.committed
}
