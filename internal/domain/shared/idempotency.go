package shared

import (
	"context"
	"time"
)

// IdempotencyStore claims webhook event IDs so a redelivered event is
// detected before any handler runs. Claims carry a TTL; once a claim
// expires, the lifecycle event log's transaction dedup is the remaining
// guard against double application.
type IdempotencyStore interface {
	// MarkProcessed atomically claims eventID for ttl. It returns true
	// when this call made the claim, false when the event was already
	// claimed.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether eventID holds an unexpired claim
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Close releases the store's resources
	Close() error
}

// IdempotencyConfig controls webhook replay detection
type IdempotencyConfig struct {
	// TTL is how long an event ID stays claimed. Stripe retries failed
	// deliveries for up to three days, so the claim must outlive the
	// retry schedule of a delivery that already succeeded.
	TTL time.Duration

	// Enabled turns the store check off entirely; transitions then rely
	// on the lifecycle event log alone.
	Enabled bool
}

// DefaultIdempotencyConfig returns the default replay detection settings
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     72 * time.Hour,
		Enabled: true,
	}
}
