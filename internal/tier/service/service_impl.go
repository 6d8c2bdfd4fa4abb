package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/metergatelabs/metergate/internal/config"
	tierdomain "github.com/metergatelabs/metergate/internal/tier/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Redis  *redis.Client
	Log    *zap.Logger
	Config config.Config
	Repo   tierdomain.Repository
}

type service struct {
	db    *gorm.DB
	redis *redis.Client
	log   *zap.Logger
	cfg   config.Config
	repo  tierdomain.Repository
}

func NewDirectory(p ServiceParam) tierdomain.Directory {
	return &service{
		db:    p.DB,
		redis: p.Redis,
		log:   p.Log.Named("tier.directory"),
		cfg:   p.Config,
		repo:  p.Repo,
	}
}

func snapshotKey(principalID snowflake.ID) string {
	return fmt.Sprintf("tier:snapshot:%s", principalID.String())
}

func (s *service) ResolveEffectiveTier(ctx context.Context, principalID snowflake.ID) (*tierdomain.Snapshot, error) {
	key := snapshotKey(principalID)

	if raw, err := s.redis.Get(ctx, key).Result(); err == nil {
		var snap tierdomain.Snapshot
		if jsonErr := json.Unmarshal([]byte(raw), &snap); jsonErr == nil {
			return &snap, nil
		}
		// Stale or non-JSON data; fall through to the store.
		s.log.Warn("discarding undecodable tier snapshot", zap.String("key", key))
	} else if err != redis.Nil {
		// Cache being down is not a resolution failure; the store still is
		// the source of truth.
		s.log.Warn("tier snapshot cache read failed", zap.Error(err))
	}

	tier, err := s.repo.FindEffective(ctx, s.db, principalID)
	if err != nil {
		return nil, err
	}
	if tier == nil {
		return nil, tierdomain.ErrTierNotFound
	}

	snap := &tierdomain.Snapshot{
		PrincipalID:  principalID,
		TierID:       tier.ID,
		TierName:     tier.Name,
		RateLimit:    tier.RateLimit,
		MonthlyQuota: tier.MonthlyQuota,
		MonthlyPrice: tier.MonthlyPrice,
	}

	if raw, jsonErr := json.Marshal(snap); jsonErr == nil {
		if err := s.redis.Set(ctx, key, raw, s.cfg.Admission.TierCacheTTL).Err(); err != nil {
			s.log.Warn("tier snapshot cache write failed", zap.Error(err))
		}
	}

	return snap, nil
}

func (s *service) InvalidateSnapshot(ctx context.Context, principalID snowflake.ID) error {
	return s.redis.Del(ctx, snapshotKey(principalID)).Err()
}
