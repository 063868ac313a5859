package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkflow/backend/internal/domain/identity"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name        string
		state       identity.BillingStatus
		event       TransitionEvent
		wantState   identity.BillingStatus
		wantEffects []Effect
	}{
		{
			name:        "payment succeeded activates from active",
			state:       identity.BillingStatusActive,
			event:       EventPaymentSucceeded,
			wantState:   identity.BillingStatusActive,
			wantEffects: []Effect{EffectActivate},
		},
		{
			name:        "payment succeeded repairs grace period",
			state:       identity.BillingStatusInGracePeriod,
			event:       EventPaymentSucceeded,
			wantState:   identity.BillingStatusActive,
			wantEffects: []Effect{EffectActivate},
		},
		{
			name:        "payment succeeded repairs past due",
			state:       identity.BillingStatusPastDue,
			event:       EventPaymentSucceeded,
			wantState:   identity.BillingStatusActive,
			wantEffects: []Effect{EffectActivate},
		},
		{
			name:      "payment succeeded is a no-op on canceled",
			state:     identity.BillingStatusCanceled,
			event:     EventPaymentSucceeded,
			wantState: identity.BillingStatusCanceled,
		},
		{
			name:        "payment failed opens grace period",
			state:       identity.BillingStatusActive,
			event:       EventPaymentFailed,
			wantState:   identity.BillingStatusInGracePeriod,
			wantEffects: []Effect{EffectRecordFailure},
		},
		{
			name:        "payment failed inside grace period still records",
			state:       identity.BillingStatusInGracePeriod,
			event:       EventPaymentFailed,
			wantState:   identity.BillingStatusInGracePeriod,
			wantEffects: []Effect{EffectRecordFailure},
		},
		{
			name:      "payment failed is a no-op on canceled",
			state:     identity.BillingStatusCanceled,
			event:     EventPaymentFailed,
			wantState: identity.BillingStatusCanceled,
		},
		{
			name:        "subscription updated remaps tier in place",
			state:       identity.BillingStatusActive,
			event:       EventSubscriptionUpdated,
			wantState:   identity.BillingStatusActive,
			wantEffects: []Effect{EffectRemapTier},
		},
		{
			name:        "subscription updated keeps grace period state",
			state:       identity.BillingStatusInGracePeriod,
			event:       EventSubscriptionUpdated,
			wantState:   identity.BillingStatusInGracePeriod,
			wantEffects: []Effect{EffectRemapTier},
		},
		{
			name:      "subscription updated is a no-op on canceled",
			state:     identity.BillingStatusCanceled,
			event:     EventSubscriptionUpdated,
			wantState: identity.BillingStatusCanceled,
		},
		{
			name:        "subscription deleted downgrades to free",
			state:       identity.BillingStatusActive,
			event:       EventSubscriptionDeleted,
			wantState:   identity.BillingStatusActive,
			wantEffects: []Effect{EffectDowngradeToFree},
		},
		{
			name:        "subscription deleted during grace downgrades to free",
			state:       identity.BillingStatusInGracePeriod,
			event:       EventSubscriptionDeleted,
			wantState:   identity.BillingStatusActive,
			wantEffects: []Effect{EffectDowngradeToFree},
		},
		{
			name:        "grace period lapse downgrades to free",
			state:       identity.BillingStatusInGracePeriod,
			event:       EventGracePeriodLapsed,
			wantState:   identity.BillingStatusActive,
			wantEffects: []Effect{EffectDowngradeToFree},
		},
		{
			name:      "grace period lapse ignored when not in grace",
			state:     identity.BillingStatusActive,
			event:     EventGracePeriodLapsed,
			wantState: identity.BillingStatusActive,
		},
		{
			name:      "grace period lapse ignored on canceled",
			state:     identity.BillingStatusCanceled,
			event:     EventGracePeriodLapsed,
			wantState: identity.BillingStatusCanceled,
		},
		{
			name:        "trial expiry downgrades to free",
			state:       identity.BillingStatusActive,
			event:       EventTrialExpired,
			wantState:   identity.BillingStatusActive,
			wantEffects: []Effect{EffectDowngradeToFree},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, effects, err := Transition(tt.state, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, next)
			assert.Equal(t, tt.wantEffects, effects)
		})
	}
}

func TestTransition_UnknownEvent(t *testing.T) {
	state, effects, err := Transition(identity.BillingStatusActive, TransitionEvent("bogus"))
	assert.Error(t, err)
	assert.Equal(t, identity.BillingStatusActive, state)
	assert.Empty(t, effects)
}
