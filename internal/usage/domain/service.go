package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidEvent = errors.New("invalid_usage_event")
)

// Producer emits usage events onto the durable channel. Best effort and
// non-blocking: it must never fail or delay the caller's response.
type Producer interface {
	Emit(event Event)
}

// Tracker is the consumer-side write path: one logical unit persisting the
// raw event and updating the month aggregate.
type Tracker interface {
	Track(ctx context.Context, event Event) error
}

// ListRequest filters raw events. A zero PrincipalID means all principals,
// which supports endpoint-wide listings across tenants. Endpoint matches as
// a substring. At least one of the two must be set.
type ListRequest struct {
	PrincipalID snowflake.ID `json:"principal_id"`
	Endpoint    string       `json:"endpoint,omitempty"`
	From        *time.Time   `json:"from,omitempty"`
	To          *time.Time   `json:"to,omitempty"`
	Limit       int          `json:"limit"`
}

// Queries is the read surface over raw usage events. The billing engine
// recomputes from these, independent of the streaming aggregate.
type Queries interface {
	List(ctx context.Context, req ListRequest) ([]Event, error)
	MonthlyCount(ctx context.Context, principalID snowflake.ID, year, month int) (int64, error)
	MonthlyStats(ctx context.Context, principalID snowflake.ID, year, month int) (map[string]int64, error)
}

// PeriodCounts is the recompute-from-raw-events aggregate.
type PeriodCounts struct {
	Total      int64
	Successful int64
	Failed     int64
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]Event, error)
	CountByPeriod(ctx context.Context, db *gorm.DB, principalID snowflake.ID, from, to time.Time) (PeriodCounts, error)
	StatsByEndpoint(ctx context.Context, db *gorm.DB, principalID snowflake.ID, from, to time.Time) (map[string]int64, error)
}
