package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Principal is the identity subject of admission control and billing.
// Owned by the identity subsystem; this module only reads it.
type Principal struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Email     string       `json:"email" gorm:"type:text;not null;uniqueIndex"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Active    bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Principal) TableName() string { return "principals" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Principal, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Principal, error)
}
