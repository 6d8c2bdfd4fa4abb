package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/metergatelabs/metergate/internal/usage/domain"
	"gorm.io/gorm"
)

const defaultListLimit = 1000

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, e *usagedomain.Event) error {
	return db.WithContext(ctx).Create(e).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req usagedomain.ListRequest) ([]usagedomain.Event, error) {
	limit := req.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	tx := db.WithContext(ctx)
	if req.PrincipalID != 0 {
		tx = tx.Where("principal_id = ?", req.PrincipalID)
	}
	if req.Endpoint != "" {
		tx = tx.Where("endpoint LIKE ?", "%"+req.Endpoint+"%")
	}
	if req.From != nil {
		tx = tx.Where("recorded_at >= ?", *req.From)
	}
	if req.To != nil {
		tx = tx.Where("recorded_at <= ?", *req.To)
	}

	var out []usagedomain.Event
	err := tx.Order("recorded_at DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) CountByPeriod(ctx context.Context, db *gorm.DB, principalID snowflake.ID, from, to time.Time) (usagedomain.PeriodCounts, error) {
	type row struct {
		Total      int64
		Successful int64
	}
	var res row
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS total,
		        SUM(CASE WHEN status_code >= 200 AND status_code < 400 THEN 1 ELSE 0 END) AS successful
		 FROM usage_events
		 WHERE principal_id = ? AND recorded_at >= ? AND recorded_at <= ?`,
		principalID, from, to,
	).Scan(&res).Error
	if err != nil {
		return usagedomain.PeriodCounts{}, err
	}
	return usagedomain.PeriodCounts{
		Total:      res.Total,
		Successful: res.Successful,
		Failed:     res.Total - res.Successful,
	}, nil
}

func (r *repo) StatsByEndpoint(ctx context.Context, db *gorm.DB, principalID snowflake.ID, from, to time.Time) (map[string]int64, error) {
	type row struct {
		Endpoint string
		Count    int64
	}
	var rows []row
	err := db.WithContext(ctx).Raw(
		`SELECT endpoint, COUNT(*) AS count
		 FROM usage_events
		 WHERE principal_id = ? AND recorded_at >= ? AND recorded_at <= ?
		 GROUP BY endpoint`,
		principalID, from, to,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int64, len(rows))
	for _, rw := range rows {
		stats[rw.Endpoint] = rw.Count
	}
	return stats, nil
}
