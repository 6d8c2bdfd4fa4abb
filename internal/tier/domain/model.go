package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Tier is a priced plan bundling a per-second rate limit and a monthly
// request quota. Changes must not retroactively alter settled summaries,
// so billed amounts always copy the price at processing time.
type Tier struct {
	ID           snowflake.ID    `json:"id" gorm:"primaryKey"`
	Name         string          `json:"name" gorm:"type:text;not null;uniqueIndex"`
	Description  string          `json:"description" gorm:"type:text"`
	RateLimit    int64           `json:"rate_limit" gorm:"not null"`
	MonthlyQuota int64           `json:"monthly_quota" gorm:"not null"`
	MonthlyPrice decimal.Decimal `json:"monthly_price" gorm:"type:numeric(12,4);not null"`
	Active       bool            `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null"`
}

func (Tier) TableName() string { return "tiers" }

// Assignment relates a principal to a tier over time. Rows are never
// physically deleted; the most recently assigned active row wins.
type Assignment struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	PrincipalID snowflake.ID `json:"principal_id" gorm:"not null;index"`
	TierID      snowflake.ID `json:"tier_id" gorm:"not null;index"`
	AssignedAt  time.Time    `json:"assigned_at" gorm:"not null"`
	Active      bool         `json:"active" gorm:"not null;default:true"`
	Notes       string       `json:"notes" gorm:"type:text"`
}

func (Assignment) TableName() string { return "tier_assignments" }

// Snapshot is the cached read replica of a principal's effective tier,
// short-lived to bound staleness after a tier change.
type Snapshot struct {
	PrincipalID  snowflake.ID    `json:"principal_id"`
	TierID       snowflake.ID    `json:"tier_id"`
	TierName     string          `json:"tier_name"`
	RateLimit    int64           `json:"rate_limit"`
	MonthlyQuota int64           `json:"monthly_quota"`
	MonthlyPrice decimal.Decimal `json:"monthly_price"`
}
