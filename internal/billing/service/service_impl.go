package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/metergatelabs/metergate/internal/billing/domain"
	"github.com/metergatelabs/metergate/internal/clock"
	"github.com/metergatelabs/metergate/internal/config"
	"github.com/metergatelabs/metergate/internal/observability"
	principaldomain "github.com/metergatelabs/metergate/internal/principal/domain"
	tierdomain "github.com/metergatelabs/metergate/internal/tier/domain"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        config.Config
	Repo          billingdomain.Repository
	UsageRepo     usagedomain.Repository
	PrincipalRepo principaldomain.Repository
	Directory     tierdomain.Directory
	Metrics       *observability.Metrics `optional:"true"`
}

type service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	overageRate   decimal.Decimal
	repo          billingdomain.Repository
	usageRepo     usagedomain.Repository
	principalRepo principaldomain.Repository
	tiers         tierdomain.Directory
	metrics       *observability.Metrics
}

func NewService(p ServiceParam) (billingdomain.Service, error) {
	rate, err := decimal.NewFromString(p.Config.Billing.OverageRate)
	if err != nil {
		return nil, err
	}
	return &service{
		db:            p.DB,
		log:           p.Log.Named("billing.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		overageRate:   rate,
		repo:          p.Repo,
		usageRepo:     p.UsageRepo,
		principalRepo: p.PrincipalRepo,
		tiers:         p.Directory,
		metrics:       p.Metrics,
	}, nil
}

func (s *service) ProcessMonthlyBilling(ctx context.Context, principalID snowflake.ID, year, month int) (*billingdomain.Summary, error) {
	if month < 1 || month > 12 || year < 1 {
		return nil, billingdomain.ErrInvalidPeriod
	}

	existing, err := s.repo.FindByPeriod(ctx, s.db, principalID, year, month)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Processed() {
		return nil, billingdomain.ErrDuplicatePeriod
	}

	principal, err := s.principalRepo.FindByID(ctx, s.db, principalID)
	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, billingdomain.ErrPrincipalNotFound
	}

	// Priced at the tier active now, not the tier active during the billed
	// month. Mid-month tier changes are not re-priced historically.
	snap, err := s.tiers.ResolveEffectiveTier(ctx, principalID)
	if err != nil {
		return nil, err
	}

	from, to := monthBounds(year, month)
	counts, err := s.usageRepo.CountByPeriod(ctx, s.db, principalID, from, to)
	if err != nil {
		return nil, err
	}
	stats, err := s.usageRepo.StatsByEndpoint(ctx, s.db, principalID, from, to)
	if err != nil {
		return nil, err
	}

	cost := s.cost(snap.MonthlyPrice, snap.MonthlyQuota, counts.Total)
	processedAt := s.clock.Now(ctx)

	summary := existing
	if summary == nil {
		summary = &billingdomain.Summary{
			ID:          s.genID.Generate(),
			PrincipalID: principalID,
			Year:        year,
			Month:       month,
		}
	}
	// The raw-event recompute is canonical; any streaming estimate for the
	// period is overwritten wholesale.
	summary.TotalRequests = counts.Total
	summary.SuccessfulRequests = counts.Successful
	summary.FailedRequests = counts.Failed
	summary.EndpointUsage = billingdomain.EndpointUsage(stats)
	summary.CalculatedCost = cost
	summary.TierPrice = snap.MonthlyPrice
	summary.ProcessedAt = &processedAt

	if existing == nil {
		if err := s.repo.Insert(ctx, s.db, summary); err != nil {
			// A concurrent writer won the unique (principal, year, month) race.
			if isDuplicateKey(err) {
				return nil, billingdomain.ErrDuplicatePeriod
			}
			return nil, err
		}
	} else if err := s.repo.Update(ctx, s.db, summary); err != nil {
		return nil, err
	}

	s.log.Info("processed monthly billing",
		zap.String("principal_id", principalID.String()),
		zap.Int("year", year), zap.Int("month", month),
		zap.Int64("total_requests", counts.Total),
		zap.String("cost", cost.StringFixed(2)))

	return summary, nil
}

func (s *service) CalculateMonthlyBill(ctx context.Context, principalID snowflake.ID, year, month int) (decimal.Decimal, error) {
	if month < 1 || month > 12 || year < 1 {
		return decimal.Zero, billingdomain.ErrInvalidPeriod
	}

	principal, err := s.principalRepo.FindByID(ctx, s.db, principalID)
	if err != nil {
		return decimal.Zero, err
	}
	if principal == nil {
		return decimal.Zero, billingdomain.ErrPrincipalNotFound
	}

	snap, err := s.tiers.ResolveEffectiveTier(ctx, principalID)
	if err != nil {
		return decimal.Zero, err
	}

	from, to := monthBounds(year, month)
	counts, err := s.usageRepo.CountByPeriod(ctx, s.db, principalID, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	return s.cost(snap.MonthlyPrice, snap.MonthlyQuota, counts.Total), nil
}

// isDuplicateKey catches unique violations from both drivers: postgres
// surfaces gorm.ErrDuplicatedKey via TranslateError, but the sqlite driver
// does not implement ErrorTranslator and passes the raw error through.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// cost = tier price, plus the per-request overage fee beyond the quota.
func (s *service) cost(price decimal.Decimal, quota, total int64) decimal.Decimal {
	if total <= quota {
		return price
	}
	overage := decimal.NewFromInt(total - quota).Mul(s.overageRate)
	return price.Add(overage)
}

func (s *service) GetSummaries(ctx context.Context, principalID snowflake.ID) ([]billingdomain.Summary, error) {
	return s.repo.ListByPrincipal(ctx, s.db, principalID)
}

func (s *service) GetSummary(ctx context.Context, principalID snowflake.ID, year, month int) (*billingdomain.Summary, error) {
	summary, err := s.repo.FindByPeriod(ctx, s.db, principalID, year, month)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, billingdomain.ErrSummaryNotFound
	}
	return summary, nil
}

func (s *service) MarkBillAsPaid(ctx context.Context, summaryID snowflake.ID) error {
	updated, err := s.repo.MarkPaid(ctx, s.db, summaryID)
	if err != nil {
		return err
	}
	if updated {
		return nil
	}
	existing, err := s.repo.FindByID(ctx, s.db, summaryID)
	if err != nil {
		return err
	}
	if existing == nil {
		return billingdomain.ErrSummaryNotFound
	}
	if !existing.Processed() {
		return billingdomain.ErrSummaryNotProcessed
	}
	return nil
}

func (s *service) ProcessAllPendingBilling(ctx context.Context) (*billingdomain.BatchResult, error) {
	now := s.clock.Now(ctx)
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	result := &billingdomain.BatchResult{Year: prev.Year(), Month: int(prev.Month())}

	principals, err := s.principalRepo.ListActive(ctx, s.db)
	if err != nil {
		return nil, err
	}

	s.log.Info("starting pending billing run",
		zap.Int("year", result.Year), zap.Int("month", result.Month),
		zap.Int("principals", len(principals)))

	for _, principal := range principals {
		existing, err := s.repo.FindByPeriod(ctx, s.db, principal.ID, result.Year, result.Month)
		if err == nil && existing != nil && existing.Processed() {
			result.Skipped++
			continue
		}
		if err != nil {
			// Treated like a processing failure for this principal; the
			// batch must keep going.
			s.log.Error("failed to check existing summary",
				zap.String("principal_id", principal.ID.String()), zap.Error(err))
			result.Errored++
			s.countBatch("errored")
			continue
		}

		if _, err := s.ProcessMonthlyBilling(ctx, principal.ID, result.Year, result.Month); err != nil {
			s.log.Error("failed to process billing for principal",
				zap.String("principal_id", principal.ID.String()), zap.Error(err))
			result.Errored++
			s.countBatch("errored")
			continue
		}
		result.Processed++
		s.countBatch("processed")
	}

	s.log.Info("completed pending billing run",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errored", result.Errored))

	return result, nil
}

func (s *service) countBatch(result string) {
	if s.metrics != nil {
		s.metrics.BillingRuns.WithLabelValues(result).Inc()
	}
}

func monthBounds(year, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return from, to
}
