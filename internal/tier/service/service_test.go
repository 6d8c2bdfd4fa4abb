package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/metergatelabs/metergate/internal/config"
	principaldomain "github.com/metergatelabs/metergate/internal/principal/domain"
	tierdomain "github.com/metergatelabs/metergate/internal/tier/domain"
	"github.com/metergatelabs/metergate/internal/tier/repository"
	"github.com/metergatelabs/metergate/internal/tier/service"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	mr    *miniredis.Miniredis
	dir   tierdomain.Directory
	genID *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&principaldomain.Principal{},
		&tierdomain.Tier{},
		&tierdomain.Assignment{},
	))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.Config{}
	cfg.Admission.TierCacheTTL = 24 * time.Hour

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	dir := service.NewDirectory(service.ServiceParam{
		DB:     db,
		Redis:  client,
		Log:    zap.NewNop(),
		Config: cfg,
		Repo:   repository.Provide(),
	})

	return &fixture{db: db, mr: mr, dir: dir, genID: node}
}

func (f *fixture) seedPrincipal(t *testing.T, active bool) snowflake.ID {
	t.Helper()
	id := f.genID.Generate()
	require.NoError(t, f.db.Create(&principaldomain.Principal{
		ID:     id,
		Email:  id.String() + "@example.com",
		Name:   "principal " + id.String(),
		Active: active,
	}).Error)
	return id
}

func (f *fixture) seedTier(t *testing.T, name string, rate, quota int64, price string) snowflake.ID {
	t.Helper()
	id := f.genID.Generate()
	require.NoError(t, f.db.Create(&tierdomain.Tier{
		ID:           id,
		Name:         name,
		RateLimit:    rate,
		MonthlyQuota: quota,
		MonthlyPrice: decimal.RequireFromString(price),
		Active:       true,
	}).Error)
	return id
}

func (f *fixture) assign(t *testing.T, principalID, tierID snowflake.ID, at time.Time, active bool) {
	t.Helper()
	require.NoError(t, f.db.Create(&tierdomain.Assignment{
		ID:          f.genID.Generate(),
		PrincipalID: principalID,
		TierID:      tierID,
		AssignedAt:  at,
		Active:      active,
	}).Error)
}

func TestResolveEffectiveTier_LatestActiveAssignmentWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.seedPrincipal(t, true)
	free := f.seedTier(t, "free", 2, 100, "0.00")
	pro := f.seedTier(t, "pro", 10, 100000, "50.00")

	now := time.Now().UTC()
	f.assign(t, p, free, now.Add(-48*time.Hour), true)
	f.assign(t, p, pro, now.Add(-time.Hour), true)

	snap, err := f.dir.ResolveEffectiveTier(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, pro, snap.TierID)
	assert.Equal(t, "pro", snap.TierName)
	assert.Equal(t, int64(10), snap.RateLimit)
	assert.Equal(t, int64(100000), snap.MonthlyQuota)
	assert.True(t, snap.MonthlyPrice.Equal(decimal.RequireFromString("50.00")))
}

func TestResolveEffectiveTier_CacheHitSkipsStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.seedPrincipal(t, true)
	tier := f.seedTier(t, "basic", 5, 1000, "10.00")
	f.assign(t, p, tier, time.Now().UTC(), true)

	first, err := f.dir.ResolveEffectiveTier(ctx, p)
	require.NoError(t, err)

	// Snapshot cached with the configured TTL.
	key := "tier:snapshot:" + p.String()
	assert.True(t, f.mr.Exists(key))
	assert.Equal(t, 24*time.Hour, f.mr.TTL(key))

	// Wipe the store; the cached snapshot must still serve.
	require.NoError(t, f.db.Exec("DELETE FROM tier_assignments").Error)

	second, err := f.dir.ResolveEffectiveTier(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, first.TierID, second.TierID)
}

func TestResolveEffectiveTier_NotFoundCases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("unassigned principal", func(t *testing.T) {
		p := f.seedPrincipal(t, true)
		_, err := f.dir.ResolveEffectiveTier(ctx, p)
		assert.ErrorIs(t, err, tierdomain.ErrTierNotFound)
	})

	t.Run("inactive principal", func(t *testing.T) {
		p := f.seedPrincipal(t, false)
		tier := f.seedTier(t, "silver", 5, 1000, "10.00")
		f.assign(t, p, tier, time.Now().UTC(), true)
		_, err := f.dir.ResolveEffectiveTier(ctx, p)
		assert.ErrorIs(t, err, tierdomain.ErrTierNotFound)
	})

	t.Run("inactive assignment", func(t *testing.T) {
		p := f.seedPrincipal(t, true)
		tier := f.seedTier(t, "gold", 5, 1000, "10.00")
		f.assign(t, p, tier, time.Now().UTC(), false)
		_, err := f.dir.ResolveEffectiveTier(ctx, p)
		assert.ErrorIs(t, err, tierdomain.ErrTierNotFound)
	})
}

func TestInvalidateSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.seedPrincipal(t, true)
	tier := f.seedTier(t, "bronze", 5, 1000, "5.00")
	f.assign(t, p, tier, time.Now().UTC(), true)

	_, err := f.dir.ResolveEffectiveTier(ctx, p)
	require.NoError(t, err)
	require.True(t, f.mr.Exists("tier:snapshot:"+p.String()))

	require.NoError(t, f.dir.InvalidateSnapshot(ctx, p))
	assert.False(t, f.mr.Exists("tier:snapshot:"+p.String()))
}
