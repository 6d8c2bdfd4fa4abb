package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/metergatelabs/metergate/internal/billing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() billingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *billingdomain.Summary) error {
	return db.WithContext(ctx).Create(s).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, s *billingdomain.Summary) error {
	return db.WithContext(ctx).Save(s).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*billingdomain.Summary, error) {
	var s billingdomain.Summary
	err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repo) FindByPeriod(ctx context.Context, db *gorm.DB, principalID snowflake.ID, year, month int) (*billingdomain.Summary, error) {
	return r.findByPeriod(ctx, db, principalID, year, month, false)
}

func (r *repo) FindByPeriodForUpdate(ctx context.Context, db *gorm.DB, principalID snowflake.ID, year, month int) (*billingdomain.Summary, error) {
	return r.findByPeriod(ctx, db, principalID, year, month, true)
}

func (r *repo) findByPeriod(ctx context.Context, db *gorm.DB, principalID snowflake.ID, year, month int, forUpdate bool) (*billingdomain.Summary, error) {
	tx := db.WithContext(ctx)
	// SQLite serializes writers on its own and rejects FOR UPDATE.
	if forUpdate && tx.Dialector.Name() != "sqlite" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var s billingdomain.Summary
	err := tx.Where("principal_id = ? AND year = ? AND month = ?", principalID, year, month).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repo) ListByPrincipal(ctx context.Context, db *gorm.DB, principalID snowflake.ID) ([]billingdomain.Summary, error) {
	var out []billingdomain.Summary
	err := db.WithContext(ctx).
		Where("principal_id = ?", principalID).
		Order("year DESC, month DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	// Unsettled streaming rows are not payable.
	result := db.WithContext(ctx).
		Model(&billingdomain.Summary{}).
		Where("id = ? AND processed_at IS NOT NULL", id).
		Update("paid", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
