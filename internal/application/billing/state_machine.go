package billing

import (
	"github.com/inkflow/backend/internal/domain/identity"
	"github.com/inkflow/backend/internal/domain/shared"
)

// TransitionEvent is an input to the billing state machine
type TransitionEvent string

const (
	EventPaymentSucceeded    TransitionEvent = "payment_succeeded"
	EventPaymentFailed       TransitionEvent = "payment_failed"
	EventSubscriptionUpdated TransitionEvent = "subscription_updated"
	EventSubscriptionDeleted TransitionEvent = "subscription_deleted"
	EventGracePeriodLapsed   TransitionEvent = "grace_period_lapsed"
	EventTrialExpired        TransitionEvent = "trial_expired"
)

// Effect is a side effect a transition requires. The state machine only
// decides; SubscriptionService applies effects against the tenant and the
// lifecycle event log.
type Effect string

const (
	// EffectActivate marks the subscription paid up: clears any grace
	// period and resets the failure counter.
	EffectActivate Effect = "activate"

	// EffectRecordFailure bumps the failure counter and opens a fixed
	// grace period if none is already running.
	EffectRecordFailure Effect = "record_failure"

	// EffectRemapTier re-reads tier and limit from the static tier table.
	EffectRemapTier Effect = "remap_tier"

	// EffectDowngradeToFree forces the free tier and clears payment linkage.
	EffectDowngradeToFree Effect = "downgrade_to_free"
)

// Transition is the pure billing state machine. Given the current billing
// status and an event it returns the next status and the effects to apply.
// It touches no storage and no clock, which is what makes every webhook
// and sweep path testable as a plain table.
func Transition(state identity.BillingStatus, ev TransitionEvent) (identity.BillingStatus, []Effect, error) {
	switch ev {
	case EventPaymentSucceeded:
		// A successful payment repairs any non-terminal state. Canceled is
		// terminal for the linked subscription; a new checkout creates a
		// fresh linkage instead of resurrecting this one.
		if state == identity.BillingStatusCanceled {
			return state, nil, nil
		}
		return identity.BillingStatusActive, []Effect{EffectActivate}, nil

	case EventPaymentFailed:
		if state == identity.BillingStatusCanceled {
			return state, nil, nil
		}
		// The failure is always counted. Whether a grace period opens is
		// decided by the tenant: an already-open window is never extended.
		return identity.BillingStatusInGracePeriod, []Effect{EffectRecordFailure}, nil

	case EventSubscriptionUpdated:
		if state == identity.BillingStatusCanceled {
			return state, nil, nil
		}
		return state, []Effect{EffectRemapTier}, nil

	case EventSubscriptionDeleted:
		// Free tier has no billing risk; the account lands active.
		return identity.BillingStatusActive, []Effect{EffectDowngradeToFree}, nil

	case EventGracePeriodLapsed:
		if state != identity.BillingStatusInGracePeriod {
			return state, nil, nil
		}
		return identity.BillingStatusActive, []Effect{EffectDowngradeToFree}, nil

	case EventTrialExpired:
		return identity.BillingStatusActive, []Effect{EffectDowngradeToFree}, nil

	default:
		return state, nil, shared.NewDomainError("UNKNOWN_TRANSITION_EVENT", "Unknown billing transition event")
	}
}
