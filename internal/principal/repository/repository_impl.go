package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	principaldomain "github.com/metergatelabs/metergate/internal/principal/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() principaldomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*principaldomain.Principal, error) {
	var p principaldomain.Principal
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, active, created_at, updated_at
		 FROM principals WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]principaldomain.Principal, error) {
	var out []principaldomain.Principal
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, name, active, created_at, updated_at
		 FROM principals WHERE active = ? ORDER BY id`,
		true,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
