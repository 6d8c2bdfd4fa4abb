package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/metergatelabs/metergate/internal/billing/domain"
	"github.com/metergatelabs/metergate/internal/clock"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        usagedomain.Repository
	SummaryRepo billingdomain.Repository
}

type service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        usagedomain.Repository
	summaryRepo billingdomain.Repository
}

func NewTracker(p ServiceParam) usagedomain.Tracker {
	return newService(p)
}

func NewQueries(p ServiceParam) usagedomain.Queries {
	return newService(p)
}

func newService(p ServiceParam) *service {
	return &service{
		db:          p.DB,
		log:         p.Log.Named("usage.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		summaryRepo: p.SummaryRepo,
	}
}

// Track persists the raw event and folds it into the month aggregate as one
// transaction. The aggregate row is locked so concurrent consumers for the
// same (principal, month) serialize their read-modify-write.
func (s *service) Track(ctx context.Context, event usagedomain.Event) error {
	if event.PrincipalID == 0 || event.Endpoint == "" {
		return usagedomain.ErrInvalidEvent
	}
	if event.ID == 0 {
		event.ID = s.genID.Generate()
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = s.clock.Now(ctx)
	}

	year, month := event.Period()

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &event); err != nil {
			return err
		}

		summary, err := s.summaryRepo.FindByPeriodForUpdate(ctx, tx, event.PrincipalID, year, month)
		if err != nil {
			return err
		}
		if summary == nil {
			summary = &billingdomain.Summary{
				ID:            s.genID.Generate(),
				PrincipalID:   event.PrincipalID,
				Year:          year,
				Month:         month,
				EndpointUsage: billingdomain.EndpointUsage{},
			}
			s.apply(summary, event)
			return s.summaryRepo.Insert(ctx, tx, summary)
		}

		if summary.EndpointUsage == nil {
			summary.EndpointUsage = billingdomain.EndpointUsage{}
		}
		s.apply(summary, event)
		return s.summaryRepo.Update(ctx, tx, summary)
	})
}

func (s *service) apply(summary *billingdomain.Summary, event usagedomain.Event) {
	summary.TotalRequests++
	if event.Successful() {
		summary.SuccessfulRequests++
	} else {
		summary.FailedRequests++
	}
	summary.EndpointUsage.Add(event.Endpoint, 1)
}

func (s *service) List(ctx context.Context, req usagedomain.ListRequest) ([]usagedomain.Event, error) {
	return s.repo.List(ctx, s.db, req)
}

func (s *service) MonthlyCount(ctx context.Context, principalID snowflake.ID, year, month int) (int64, error) {
	from, to := monthBounds(year, month)
	counts, err := s.repo.CountByPeriod(ctx, s.db, principalID, from, to)
	if err != nil {
		return 0, err
	}
	return counts.Total, nil
}

func (s *service) MonthlyStats(ctx context.Context, principalID snowflake.ID, year, month int) (map[string]int64, error) {
	from, to := monthBounds(year, month)
	return s.repo.StatsByEndpoint(ctx, s.db, principalID, from, to)
}

func monthBounds(year, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return from, to
}
