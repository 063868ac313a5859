package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TenantRepository defines the persistence interface for tenants
type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindByEmail(ctx context.Context, email string) (*Tenant, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*Tenant, error)
	FindByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*Tenant, error)
	Save(ctx context.Context, tenant *Tenant) error

	// FindInGracePeriod returns all tenants with an open grace period window
	FindInGracePeriod(ctx context.Context) ([]Tenant, error)

	// FindExpiredTrials returns trial tenants whose trial ended before the cutoff
	FindExpiredTrials(ctx context.Context, cutoff time.Time) ([]Tenant, error)

	// IncrementUsage atomically consumes one unit of the monthly allowance.
	// Returns false without error when the allowance is already exhausted.
	IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error)

	// DecrementUsage atomically returns one unit, compensating a failed
	// downstream call. Never takes the counter below zero.
	DecrementUsage(ctx context.Context, id uuid.UUID) error

	// ResetPeriod applies a lazy period rollover. The conditional write on
	// the previous period end makes concurrent rollovers collapse into one.
	ResetPeriod(ctx context.Context, id uuid.UUID, previousPeriodEnd, newPeriodEnd time.Time) error
}
