package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ReasonRateLimitExceeded    = "rate_limit_exceeded"
	ReasonMonthlyQuotaExceeded = "monthly_quota_exceeded"
	ReasonTierUnresolved       = "tier_unresolved"
)

// Decision is the outcome of one admission check. Denials carry everything
// the HTTP layer needs for the 429 response.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`

	TierID snowflake.ID `json:"tier_id,omitempty"`

	// Limit and Remaining describe the window the denial (or the tightest
	// allowed check) was evaluated against.
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`

	RetryAfter time.Duration `json:"retry_after"`
	Reset      time.Time     `json:"reset"`

	// Unlimited marks principals admitted without limiting (bypass or
	// fail-open); no counters were consumed.
	Unlimited bool `json:"unlimited"`
}

// QuotaStatus is the read-only view of a principal's month window; nothing
// is consumed by computing it.
type QuotaStatus struct {
	TierID    snowflake.ID `json:"tier_id"`
	TierName  string       `json:"tier_name"`
	Limit     int64        `json:"limit"`
	Used      int64        `json:"used"`
	Remaining int64        `json:"remaining"`
	Reset     time.Time    `json:"reset"`
}

type Service interface {
	Admit(ctx context.Context, principalID snowflake.ID, now time.Time) Decision

	// QuotaStatus reports the month window without consuming budget.
	QuotaStatus(ctx context.Context, principalID snowflake.ID, now time.Time) (*QuotaStatus, error)
}
