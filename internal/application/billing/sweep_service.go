package billing

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	domainbilling "github.com/inkflow/backend/internal/domain/billing"
	"github.com/inkflow/backend/internal/domain/identity"
)

// SweepReport summarizes one sweep run
type SweepReport struct {
	Processed  int `json:"processed"`
	Reminded   int `json:"reminded"`
	Downgraded int `json:"downgraded"`
}

// SweepService runs the periodic billing sweeps: grace-period reminders
// and downgrades, and trial expirations. Every pass is idempotent, so the
// in-process ticker and an external scheduler hitting the /cron endpoints
// can overlap without double effects.
type SweepService struct {
	tenants      identity.TenantRepository
	events       domainbilling.LifecycleEventRepository
	subscription *SubscriptionService
	reminderDays []int
	logger       *zap.Logger
}

// NewSweepService creates a new SweepService. reminderDays are the
// days-remaining marks at which grace reminders fire, typically 7, 3, 1.
func NewSweepService(tenants identity.TenantRepository, events domainbilling.LifecycleEventRepository, subscription *SubscriptionService, reminderDays []int, logger *zap.Logger) *SweepService {
	if len(reminderDays) == 0 {
		reminderDays = []int{7, 3, 1}
	}
	return &SweepService{
		tenants:      tenants,
		events:       events,
		subscription: subscription,
		reminderDays: reminderDays,
		logger:       logger,
	}
}

// SweepGracePeriods walks every tenant with an open or lapsed grace
// period. Lapsed windows downgrade to free; open windows get at most one
// reminder per configured days-remaining mark, deduped against the
// lifecycle event log.
func (s *SweepService) SweepGracePeriods(ctx context.Context) (*SweepReport, error) {
	tenants, err := s.tenants.FindInGracePeriod(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants in grace period: %w", err)
	}

	report := &SweepReport{}
	now := time.Now()

	for i := range tenants {
		tenant := &tenants[i]
		report.Processed++

		if tenant.IsGracePeriodLapsed(now) {
			if err := s.subscription.DowngradeAfterGrace(ctx, tenant); err != nil {
				s.logger.Error("Failed to downgrade tenant after grace period",
					zap.String("tenant_id", tenant.ID.String()),
					zap.Error(err))
				continue
			}
			report.Downgraded++
			continue
		}

		reminded, err := s.remindIfDue(ctx, tenant, now)
		if err != nil {
			s.logger.Error("Failed to send grace period reminder",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err))
			continue
		}
		if reminded {
			report.Reminded++
		}
	}

	s.logger.Info("Grace period sweep finished",
		zap.Int("processed", report.Processed),
		zap.Int("reminded", report.Reminded),
		zap.Int("downgraded", report.Downgraded))
	return report, nil
}

// SweepTrialExpirations downgrades trial tenants whose trial has ended
func (s *SweepService) SweepTrialExpirations(ctx context.Context) (*SweepReport, error) {
	tenants, err := s.tenants.FindExpiredTrials(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired trials: %w", err)
	}

	report := &SweepReport{}
	for i := range tenants {
		tenant := &tenants[i]
		report.Processed++

		if err := s.subscription.ExpireTrial(ctx, tenant); err != nil {
			s.logger.Error("Failed to expire trial",
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err))
			continue
		}
		report.Downgraded++
	}

	s.logger.Info("Trial expiration sweep finished",
		zap.Int("processed", report.Processed),
		zap.Int("downgraded", report.Downgraded))
	return report, nil
}

// remindIfDue sends at most one reminder for the current days-remaining
// mark. The dedup window starts at the grace period's opening, so
// reminders from an earlier, already-closed grace period do not suppress
// new ones.
func (s *SweepService) remindIfDue(ctx context.Context, tenant *identity.Tenant, now time.Time) (bool, error) {
	if tenant.GracePeriodEnd == nil {
		return false, nil
	}

	daysRemaining := daysUntil(now, *tenant.GracePeriodEnd)

	due := false
	for _, mark := range s.reminderDays {
		if daysRemaining == mark {
			due = true
			break
		}
	}
	if !due {
		return false, nil
	}

	windowStart := tenant.GracePeriodEnd.AddDate(0, 0, -identity.GracePeriodDays)
	sent, err := s.events.HasReminder(ctx, tenant.ID, daysRemaining, windowStart)
	if err != nil {
		return false, err
	}
	if sent {
		return false, nil
	}

	event := domainbilling.NewLifecycleEvent(tenant.ID, domainbilling.LifecycleEventGraceReminderSent, tenant.Tier, tenant.Tier, "").
		WithMetadata(fmt.Sprintf(`{"days_remaining":%d}`, daysRemaining))
	if err := s.events.Append(ctx, event); err != nil {
		return false, err
	}

	s.logger.Info("Grace period reminder recorded",
		zap.String("tenant_id", tenant.ID.String()),
		zap.Int("days_remaining", daysRemaining),
		zap.Timep("grace_period_end", tenant.GracePeriodEnd))
	return true, nil
}

// daysUntil counts whole days remaining, rounding partial days up so the
// "1 day remaining" mark fires during the final day, not after it.
func daysUntil(now, end time.Time) int {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}
