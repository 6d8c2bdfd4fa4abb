package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/metergatelabs/metergate/internal/billing/domain"
	billingrepo "github.com/metergatelabs/metergate/internal/billing/repository"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
	"github.com/metergatelabs/metergate/internal/usage/repository"
	"github.com/metergatelabs/metergate/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now(context.Context) time.Time { return c.t }

type fixture struct {
	db      *gorm.DB
	genID   *snowflake.Node
	tracker usagedomain.Tracker
	queries usagedomain.Queries
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&usagedomain.Event{},
		&billingdomain.Summary{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	param := service.ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fixedClock{t: time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)},
		Repo:        repository.Provide(),
		SummaryRepo: billingrepo.Provide(),
	}

	return &fixture{
		db:      db,
		genID:   node,
		tracker: service.NewTracker(param),
		queries: service.NewQueries(param),
	}
}

func event(principal snowflake.ID, endpoint string, status int, at time.Time) usagedomain.Event {
	return usagedomain.Event{
		PrincipalID: principal,
		Endpoint:    endpoint,
		HTTPMethod:  "GET",
		StatusCode:  status,
		LatencyMs:   12,
		RecordedAt:  at,
	}
}

func TestTrack_PersistsEventAndAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.genID.Generate()
	at := time.Date(2025, 9, 10, 8, 0, 0, 0, time.UTC)

	require.NoError(t, f.tracker.Track(ctx, event(p, "/api/products", 201, at)))

	// Raw event row.
	events, err := f.queries.List(ctx, usagedomain.ListRequest{PrincipalID: p})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "/api/products", events[0].Endpoint)
	assert.Equal(t, 201, events[0].StatusCode)
	assert.NotZero(t, events[0].ID)

	// Month aggregate row, written in the same transaction.
	var summary billingdomain.Summary
	require.NoError(t, f.db.Where("principal_id = ? AND year = ? AND month = ?", p, 2025, 9).First(&summary).Error)
	assert.Equal(t, int64(1), summary.TotalRequests)
	assert.Equal(t, int64(1), summary.SuccessfulRequests)
	assert.Equal(t, int64(0), summary.FailedRequests)
	assert.Equal(t, int64(1), summary.EndpointUsage["/api/products"])
	assert.Nil(t, summary.ProcessedAt)
}

func TestTrack_AccumulatesIntoExistingAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.genID.Generate()
	at := time.Date(2025, 9, 10, 8, 0, 0, 0, time.UTC)

	require.NoError(t, f.tracker.Track(ctx, event(p, "/api/products", 200, at)))
	require.NoError(t, f.tracker.Track(ctx, event(p, "/api/products", 500, at.Add(time.Minute))))
	require.NoError(t, f.tracker.Track(ctx, event(p, "/api/orders", 302, at.Add(2*time.Minute))))

	var summary billingdomain.Summary
	require.NoError(t, f.db.Where("principal_id = ? AND year = ? AND month = ?", p, 2025, 9).First(&summary).Error)
	assert.Equal(t, int64(3), summary.TotalRequests)
	assert.Equal(t, int64(2), summary.SuccessfulRequests)
	assert.Equal(t, int64(1), summary.FailedRequests)
	assert.Equal(t, int64(2), summary.EndpointUsage["/api/products"])
	assert.Equal(t, int64(1), summary.EndpointUsage["/api/orders"])
}

func TestTrack_SplitsAggregatesByMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.genID.Generate()

	require.NoError(t, f.tracker.Track(ctx, event(p, "/a", 200, time.Date(2025, 9, 30, 23, 59, 0, 0, time.UTC))))
	require.NoError(t, f.tracker.Track(ctx, event(p, "/a", 200, time.Date(2025, 10, 1, 0, 1, 0, 0, time.UTC))))

	var count int64
	require.NoError(t, f.db.Model(&billingdomain.Summary{}).Where("principal_id = ?", p).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestTrack_RejectsInvalidEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.tracker.Track(ctx, usagedomain.Event{Endpoint: "/a"})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidEvent)

	err = f.tracker.Track(ctx, usagedomain.Event{PrincipalID: f.genID.Generate()})
	assert.ErrorIs(t, err, usagedomain.ErrInvalidEvent)
}

func TestQueries_ListFiltersByEndpointAcrossPrincipals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.genID.Generate()
	p2 := f.genID.Generate()
	at := time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.tracker.Track(ctx, event(p1, "/api/products", 200, at)))
	require.NoError(t, f.tracker.Track(ctx, event(p2, "/api/products/42", 200, at.Add(time.Minute))))
	require.NoError(t, f.tracker.Track(ctx, event(p2, "/api/orders", 200, at.Add(2*time.Minute))))

	// Substring match spans principals.
	events, err := f.queries.List(ctx, usagedomain.ListRequest{Endpoint: "products"})
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Combined with a principal filter.
	events, err = f.queries.List(ctx, usagedomain.ListRequest{PrincipalID: p2, Endpoint: "products"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "/api/products/42", events[0].Endpoint)
}

func TestQueries_MonthlyCountAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.genID.Generate()
	at := time.Date(2025, 9, 5, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, f.tracker.Track(ctx, event(p, "/api/products", 200, at.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, f.tracker.Track(ctx, event(p, "/api/orders", 404, at)))
	// Outside the queried month.
	require.NoError(t, f.tracker.Track(ctx, event(p, "/api/products", 200, at.AddDate(0, 1, 0))))

	count, err := f.queries.MonthlyCount(ctx, p, 2025, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	stats, err := f.queries.MonthlyStats(ctx, p, 2025, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats["/api/products"])
	assert.Equal(t, int64(1), stats["/api/orders"])
}
