package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	tierdomain "github.com/metergatelabs/metergate/internal/tier/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tierdomain.Repository {
	return &repo{}
}

func (r *repo) FindTierByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tierdomain.Tier, error) {
	var t tierdomain.Tier
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, description, rate_limit, monthly_quota, monthly_price, active, created_at, updated_at
		 FROM tiers WHERE id = ?`,
		id,
	).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (r *repo) ListTiers(ctx context.Context, db *gorm.DB) ([]tierdomain.Tier, error) {
	var out []tierdomain.Tier
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, description, rate_limit, monthly_quota, monthly_price, active, created_at, updated_at
		 FROM tiers WHERE active = ? ORDER BY monthly_price`,
		true,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) FindEffective(ctx context.Context, db *gorm.DB, principalID snowflake.ID) (*tierdomain.Tier, error) {
	var t tierdomain.Tier
	err := db.WithContext(ctx).Raw(
		`SELECT t.id, t.name, t.description, t.rate_limit, t.monthly_quota, t.monthly_price, t.active, t.created_at, t.updated_at
		 FROM tier_assignments ta
		 JOIN tiers t ON t.id = ta.tier_id AND t.active = ?
		 JOIN principals p ON p.id = ta.principal_id AND p.active = ?
		 WHERE ta.principal_id = ? AND ta.active = ?
		 ORDER BY ta.assigned_at DESC
		 LIMIT 1`,
		true, true, principalID, true,
	).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}
