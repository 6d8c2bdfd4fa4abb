package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextRun(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "mid month",
			now:  time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC),
			hour: 2,
			want: time.Date(2025, 10, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "first of month before run hour",
			now:  time.Date(2025, 9, 1, 1, 59, 0, 0, time.UTC),
			hour: 2,
			want: time.Date(2025, 10, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "december rolls into january",
			now:  time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC),
			hour: 2,
			want: time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at the trigger schedules the following month",
			now:  time.Date(2025, 10, 1, 2, 0, 0, 0, time.UTC),
			hour: 2,
			want: time.Date(2025, 11, 1, 2, 0, 0, 0, time.UTC),
		},
		{
			name: "non-utc input normalized",
			now:  time.Date(2025, 9, 15, 23, 0, 0, 0, time.FixedZone("UTC+9", 9*3600)),
			hour: 2,
			want: time.Date(2025, 10, 1, 2, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextRun(tt.now, tt.hour))
		})
	}
}
