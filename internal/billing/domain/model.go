package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// EndpointUsage maps endpoint path to request count. Stored as a JSON blob
// on the summary row; increments must run under the aggregate's row lock.
type EndpointUsage map[string]int64

func (u EndpointUsage) Add(path string, n int64) {
	u[path] += n
}

func (u EndpointUsage) Value() (driver.Value, error) {
	if u == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (u *EndpointUsage) Scan(src any) error {
	if src == nil {
		*u = EndpointUsage{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported endpoint usage source type %T", src)
	}
	if len(raw) == 0 {
		*u = EndpointUsage{}
		return nil
	}
	return json.Unmarshal(raw, u)
}

// Summary is the per-principal, per-calendar-month rollup. One row per
// (principal, year, month); rows written by the streaming consumer have a
// nil ProcessedAt until the billing engine settles them.
type Summary struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	PrincipalID snowflake.ID `json:"principal_id" gorm:"not null;uniqueIndex:idx_summary_period,priority:1"`
	Year        int          `json:"year" gorm:"not null;uniqueIndex:idx_summary_period,priority:2"`
	Month       int          `json:"month" gorm:"not null;uniqueIndex:idx_summary_period,priority:3"`

	TotalRequests      int64 `json:"total_requests" gorm:"not null"`
	SuccessfulRequests int64 `json:"successful_requests" gorm:"not null"`
	FailedRequests     int64 `json:"failed_requests" gorm:"not null"`

	EndpointUsage EndpointUsage `json:"endpoint_usage" gorm:"type:text"`

	CalculatedCost decimal.Decimal `json:"calculated_cost" gorm:"type:numeric(12,4)"`
	TierPrice      decimal.Decimal `json:"tier_price" gorm:"type:numeric(12,4)"`

	ProcessedAt *time.Time `json:"processed_at"`
	Paid        bool       `json:"paid" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Summary) TableName() string { return "monthly_usage_summaries" }

// Processed reports whether the billing engine has settled this row.
func (s *Summary) Processed() bool { return s.ProcessedAt != nil }
