package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrDuplicatePeriod     = errors.New("duplicate_period")
	ErrSummaryNotFound     = errors.New("summary_not_found")
	ErrSummaryNotProcessed = errors.New("summary_not_processed")
	ErrPrincipalNotFound   = errors.New("principal_not_found")
	ErrInvalidPeriod       = errors.New("invalid_period")
)

// BatchResult reports one ProcessAllPendingBilling run.
type BatchResult struct {
	Year      int `json:"year"`
	Month     int `json:"month"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
}

type Service interface {
	// ProcessMonthlyBilling settles a period: recomputes counts from raw
	// usage events, prices them at the principal's current tier, and
	// persists the summary. Fails with ErrDuplicatePeriod when the period
	// is already settled.
	ProcessMonthlyBilling(ctx context.Context, principalID snowflake.ID, year, month int) (*Summary, error)

	// CalculateMonthlyBill prices a period without persisting anything.
	CalculateMonthlyBill(ctx context.Context, principalID snowflake.ID, year, month int) (decimal.Decimal, error)

	GetSummaries(ctx context.Context, principalID snowflake.ID) ([]Summary, error)
	GetSummary(ctx context.Context, principalID snowflake.ID, year, month int) (*Summary, error)

	// MarkBillAsPaid is the one-shot Processed -> Paid transition. Only a
	// settled summary can be paid; an unbilled streaming row fails with
	// ErrSummaryNotProcessed.
	MarkBillAsPaid(ctx context.Context, summaryID snowflake.ID) error

	// ProcessAllPendingBilling settles the previous calendar month for all
	// active principals, isolating per-principal failures.
	ProcessAllPendingBilling(ctx context.Context) (*BatchResult, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, s *Summary) error
	Update(ctx context.Context, db *gorm.DB, s *Summary) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Summary, error)
	FindByPeriod(ctx context.Context, db *gorm.DB, principalID snowflake.ID, year, month int) (*Summary, error)

	// FindByPeriodForUpdate locks the period row for the caller's
	// transaction; concurrent aggregate writers serialize through it.
	FindByPeriodForUpdate(ctx context.Context, db *gorm.DB, principalID snowflake.ID, year, month int) (*Summary, error)

	ListByPrincipal(ctx context.Context, db *gorm.DB, principalID snowflake.ID) ([]Summary, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
