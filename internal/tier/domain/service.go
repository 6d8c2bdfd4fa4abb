package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrTierNotFound = errors.New("tier_not_found")
)

// Directory resolves a principal's effective tier: the latest active
// assignment joined to its active tier, cached with a bounded TTL.
type Directory interface {
	ResolveEffectiveTier(ctx context.Context, principalID snowflake.ID) (*Snapshot, error)

	// InvalidateSnapshot drops the cached snapshot after a tier change.
	InvalidateSnapshot(ctx context.Context, principalID snowflake.ID) error
}

type Repository interface {
	FindTierByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tier, error)
	ListTiers(ctx context.Context, db *gorm.DB) ([]Tier, error)

	// FindEffective returns the tier referenced by the principal's most
	// recently assigned active row, or nil when the principal is inactive,
	// unassigned, or points at an inactive tier.
	FindEffective(ctx context.Context, db *gorm.DB, principalID snowflake.ID) (*Tier, error)
}
