package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	admissiondomain "github.com/metergatelabs/metergate/internal/admission/domain"
	"github.com/metergatelabs/metergate/internal/config"
	"github.com/metergatelabs/metergate/internal/counter"
	"github.com/metergatelabs/metergate/internal/observability"
	tierdomain "github.com/metergatelabs/metergate/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	Counter   counter.Counter
	Directory tierdomain.Directory
	Metrics   *observability.Metrics `optional:"true"`
}

type service struct {
	log      *zap.Logger
	cfg      config.Config
	counters counter.Counter
	tiers    tierdomain.Directory
	metrics  *observability.Metrics
}

func NewService(p ServiceParam) admissiondomain.Service {
	return &service{
		log:      p.Log.Named("admission.service"),
		cfg:      p.Config,
		counters: p.Counter,
		tiers:    p.Directory,
		metrics:  p.Metrics,
	}
}

func quotaKey(principalID snowflake.ID, now time.Time) string {
	return fmt.Sprintf("quota:req:%s:%s", principalID.String(), now.UTC().Format("200601"))
}

func rateKey(principalID snowflake.ID, now time.Time) string {
	return fmt.Sprintf("rate:req:%s:%d", principalID.String(), now.Unix())
}

func (s *service) Admit(ctx context.Context, principalID snowflake.ID, now time.Time) admissiondomain.Decision {
	snap, err := s.tiers.ResolveEffectiveTier(ctx, principalID)
	if err != nil {
		if errors.Is(err, tierdomain.ErrTierNotFound) {
			// No tier on file means nothing to enforce.
			return s.decide(admissiondomain.Decision{Allowed: true, Unlimited: true}, "no_tier")
		}
		if s.cfg.Admission.FailOpen {
			s.log.Warn("tier resolution failed, admitting without limits",
				zap.String("principal_id", principalID.String()), zap.Error(err))
			return s.decide(admissiondomain.Decision{Allowed: true, Unlimited: true}, "fail_open")
		}
		s.log.Warn("tier resolution failed, denying",
			zap.String("principal_id", principalID.String()), zap.Error(err))
		return s.decide(admissiondomain.Decision{
			Allowed:    false,
			Reason:     admissiondomain.ReasonTierUnresolved,
			RetryAfter: time.Second,
			Reset:      now.Add(time.Second),
		}, admissiondomain.ReasonTierUnresolved)
	}

	// Monthly quota first: a request denied on quota must not consume rate
	// budget either.
	monthKey := quotaKey(principalID, now)
	monthCount, err := s.counters.IncrWithTTL(ctx, monthKey, s.cfg.Admission.QuotaCounterTTL)
	if err != nil {
		s.log.Warn("quota counter unavailable, admitting", zap.Error(err))
		return s.decide(admissiondomain.Decision{Allowed: true, Unlimited: true, TierID: snap.TierID}, "fail_open")
	}
	if monthCount > snap.MonthlyQuota {
		s.compensate(ctx, monthKey)
		reset := firstOfNextMonth(now)
		return s.decide(admissiondomain.Decision{
			Allowed:    false,
			Reason:     admissiondomain.ReasonMonthlyQuotaExceeded,
			TierID:     snap.TierID,
			Limit:      snap.MonthlyQuota,
			Remaining:  0,
			RetryAfter: reset.Sub(now),
			Reset:      reset,
		}, admissiondomain.ReasonMonthlyQuotaExceeded)
	}

	secKey := rateKey(principalID, now)
	secCount, err := s.counters.IncrWithTTL(ctx, secKey, s.cfg.Admission.RateCounterTTL)
	if err != nil {
		s.log.Warn("rate counter unavailable, admitting", zap.Error(err))
		return s.decide(admissiondomain.Decision{Allowed: true, Unlimited: true, TierID: snap.TierID}, "fail_open")
	}
	if secCount > snap.RateLimit {
		// The month increment already happened for a request that will not
		// be served; roll both windows back.
		s.compensate(ctx, secKey)
		s.compensate(ctx, monthKey)
		return s.decide(admissiondomain.Decision{
			Allowed:    false,
			Reason:     admissiondomain.ReasonRateLimitExceeded,
			TierID:     snap.TierID,
			Limit:      snap.RateLimit,
			Remaining:  0,
			RetryAfter: time.Second,
			Reset:      now.Add(time.Second),
		}, admissiondomain.ReasonRateLimitExceeded)
	}

	return s.decide(admissiondomain.Decision{
		Allowed:   true,
		TierID:    snap.TierID,
		Limit:     snap.RateLimit,
		Remaining: snap.MonthlyQuota - monthCount,
		Reset:     firstOfNextMonth(now),
	}, "")
}

func (s *service) QuotaStatus(ctx context.Context, principalID snowflake.ID, now time.Time) (*admissiondomain.QuotaStatus, error) {
	snap, err := s.tiers.ResolveEffectiveTier(ctx, principalID)
	if err != nil {
		return nil, err
	}

	used, err := s.counters.Peek(ctx, quotaKey(principalID, now))
	if err != nil {
		return nil, err
	}
	remaining := snap.MonthlyQuota - used
	if remaining < 0 {
		remaining = 0
	}

	return &admissiondomain.QuotaStatus{
		TierID:    snap.TierID,
		TierName:  snap.TierName,
		Limit:     snap.MonthlyQuota,
		Used:      used,
		Remaining: remaining,
		Reset:     firstOfNextMonth(now),
	}, nil
}

func (s *service) compensate(ctx context.Context, key string) {
	if err := s.counters.Compensate(ctx, key); err != nil {
		s.log.Warn("compensating decrement failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *service) decide(d admissiondomain.Decision, reason string) admissiondomain.Decision {
	if s.metrics != nil {
		outcome := "denied"
		if d.Allowed {
			outcome = "allowed"
		}
		s.metrics.AdmissionDecisions.WithLabelValues(outcome, reason).Inc()
	}
	return d
}

func firstOfNextMonth(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
