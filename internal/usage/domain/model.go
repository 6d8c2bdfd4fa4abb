package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event is an immutable fact about one completed, admitted request.
// Persisted verbatim by the pipeline consumer; never mutated.
type Event struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	PrincipalID snowflake.ID `json:"principal_id" gorm:"not null;index:idx_usage_principal_time,priority:1"`

	Endpoint   string `json:"endpoint" gorm:"type:text;not null"`
	HTTPMethod string `json:"http_method" gorm:"type:text;not null"`
	StatusCode int    `json:"status_code" gorm:"not null"`
	LatencyMs  int64  `json:"latency_ms" gorm:"not null"`

	IPAddress string `json:"ip_address,omitempty" gorm:"type:text"`
	UserAgent string `json:"user_agent,omitempty" gorm:"type:text"`

	RecordedAt time.Time `json:"recorded_at" gorm:"not null;index:idx_usage_principal_time,priority:2"`

	Metadata datatypes.JSON `json:"metadata,omitempty"`
}

func (Event) TableName() string { return "usage_events" }

// Successful classifies the event for aggregate counting.
func (e Event) Successful() bool {
	return e.StatusCode >= 200 && e.StatusCode < 400
}

// Period returns the calendar month the event falls in, UTC.
func (e Event) Period() (year, month int) {
	ts := e.RecordedAt.UTC()
	return ts.Year(), int(ts.Month())
}
