// Package scheduler owns the recurring billing run: one long-lived loop
// that fires on the first of each month.
package scheduler

import (
	"context"
	"time"

	billingdomain "github.com/metergatelabs/metergate/internal/billing/domain"
	"github.com/metergatelabs/metergate/internal/clock"
	"github.com/metergatelabs/metergate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const errorBackoff = time.Hour

type Scheduler struct {
	log        *zap.Logger
	clock      clock.Clock
	billing    billingdomain.Service
	runHourUTC int

	cancel context.CancelFunc
	done   chan struct{}
}

type SchedulerParam struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Config  config.Config
	Billing billingdomain.Service
}

func New(p SchedulerParam) *Scheduler {
	return &Scheduler{
		log:        p.Log.Named("scheduler"),
		clock:      p.Clock,
		billing:    p.Billing,
		runHourUTC: p.Config.Billing.RunHourUTC,
	}
}

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(Register),
)

func Register(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.done = make(chan struct{})
			go s.run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.cancel()
			select {
			case <-s.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	s.log.Info("billing scheduler started")

	for {
		now := s.clock.Now(ctx)
		next := NextRun(now, s.runHourUTC)
		s.log.Info("next billing run scheduled", zap.Time("at", next))

		if !s.sleep(ctx, next.Sub(now)) {
			s.log.Info("billing scheduler stopped")
			return
		}

		if _, err := s.billing.ProcessAllPendingBilling(ctx); err != nil {
			s.log.Error("billing run failed", zap.Error(err))
			// Back off before recomputing; no busy loop on persistent errors.
			if !s.sleep(ctx, errorBackoff) {
				s.log.Info("billing scheduler stopped")
				return
			}
		}
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// NextRun computes the next trigger: the first day of the next calendar
// month at the given hour UTC. Computed relative to now, so an overrunning
// batch never causes a rapid re-trigger.
func NextRun(now time.Time, hourUTC int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), 1, hourUTC, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	if !next.After(now) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}
