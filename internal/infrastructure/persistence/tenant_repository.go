package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkflow/backend/internal/domain/identity"
	"github.com/inkflow/backend/internal/domain/shared"
)

// GormTenantRepository implements TenantRepository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// FindByID finds a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	var tenant identity.Tenant
	if err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// FindByEmail finds a tenant by email
func (r *GormTenantRepository) FindByEmail(ctx context.Context, email string) (*identity.Tenant, error) {
	if email == "" {
		return nil, shared.NewDomainError("INVALID_EMAIL", "Email cannot be empty")
	}
	var tenant identity.Tenant
	if err := r.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(email)).
		First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// FindByStripeCustomerID finds the tenant linked to a Stripe customer
func (r *GormTenantRepository) FindByStripeCustomerID(ctx context.Context, customerID string) (*identity.Tenant, error) {
	if customerID == "" {
		return nil, shared.NewDomainError("INVALID_CUSTOMER_ID", "Stripe customer ID cannot be empty")
	}
	var tenant identity.Tenant
	if err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", customerID).
		First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// FindByStripeSubscriptionID finds the tenant linked to a Stripe subscription
func (r *GormTenantRepository) FindByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*identity.Tenant, error) {
	if subscriptionID == "" {
		return nil, shared.NewDomainError("INVALID_SUBSCRIPTION_ID", "Stripe subscription ID cannot be empty")
	}
	var tenant identity.Tenant
	if err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", subscriptionID).
		First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

// Save persists a tenant (create or update)
func (r *GormTenantRepository) Save(ctx context.Context, tenant *identity.Tenant) error {
	return r.db.WithContext(ctx).Save(tenant).Error
}

// FindInGracePeriod returns all tenants with an open grace period window
func (r *GormTenantRepository) FindInGracePeriod(ctx context.Context) ([]identity.Tenant, error) {
	var tenants []identity.Tenant
	if err := r.db.WithContext(ctx).
		Where("billing_status = ?", identity.BillingStatusInGracePeriod).
		Where("grace_period_end IS NOT NULL").
		Order("grace_period_end ASC").
		Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// FindExpiredTrials returns trial tenants whose trial ended before the cutoff
func (r *GormTenantRepository) FindExpiredTrials(ctx context.Context, cutoff time.Time) ([]identity.Tenant, error) {
	var tenants []identity.Tenant
	if err := r.db.WithContext(ctx).
		Where("tier = ?", identity.TierTrial).
		Where("trial_ends_at IS NOT NULL AND trial_ends_at < ?", cutoff).
		Order("trial_ends_at ASC").
		Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// IncrementUsage atomically consumes one unit of the monthly allowance.
// The guard rides in the WHERE clause, so two concurrent increments racing
// for the last unit resolve in the database: exactly one sees RowsAffected=1.
func (r *GormTenantRepository) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&identity.Tenant{}).
		Where("id = ? AND monthly_used < monthly_limit", id).
		UpdateColumns(map[string]interface{}{
			"monthly_used": gorm.Expr("monthly_used + 1"),
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DecrementUsage atomically returns one unit, never taking the counter
// below zero. A no-op decrement (already zero, or repeated release) is not
// an error.
func (r *GormTenantRepository) DecrementUsage(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&identity.Tenant{}).
		Where("id = ? AND monthly_used > 0", id).
		UpdateColumns(map[string]interface{}{
			"monthly_used": gorm.Expr("monthly_used - 1"),
			"updated_at":   time.Now(),
		}).Error
}

// ResetPeriod applies a lazy period rollover. Conditioning on the previous
// period end collapses concurrent rollovers into a single winner; losers
// see RowsAffected=0, which is fine because the reset already happened.
func (r *GormTenantRepository) ResetPeriod(ctx context.Context, id uuid.UUID, previousPeriodEnd, newPeriodEnd time.Time) error {
	return r.db.WithContext(ctx).
		Model(&identity.Tenant{}).
		Where("id = ? AND period_end = ?", id, previousPeriodEnd).
		UpdateColumns(map[string]interface{}{
			"monthly_used": 0,
			"period_end":   newPeriodEnd,
			"updated_at":   time.Now(),
		}).Error
}

var _ identity.TenantRepository = (*GormTenantRepository)(nil)
