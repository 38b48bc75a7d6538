package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "monday maps to itself",
			in:   date(2025, time.June, 2),
			want: date(2025, time.June, 2),
		},
		{
			name: "wednesday maps back to monday",
			in:   date(2025, time.June, 4),
			want: date(2025, time.June, 2),
		},
		{
			name: "sunday maps back six days",
			in:   date(2025, time.June, 8),
			want: date(2025, time.June, 2),
		},
		{
			name: "time of day is stripped",
			in:   time.Date(2025, time.June, 5, 23, 59, 0, 0, time.UTC),
			want: date(2025, time.June, 2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeekStart(tt.in))
		})
	}
}

func TestResolve(t *testing.T) {
	weekStart := date(2025, time.June, 2) // Monday

	tests := []struct {
		name        string
		label       string
		want        time.Time
		wantWarning bool
	}{
		{
			name:  "plain english weekday",
			label: "Monday",
			want:  date(2025, time.June, 2),
		},
		{
			name:  "plain italian weekday",
			label: "Venerdì",
			want:  date(2025, time.June, 6),
		},
		{
			name:  "italian weekday without accent",
			label: "venerdi",
			want:  date(2025, time.June, 6),
		},
		{
			name:  "sunday resolves inside the same iso week",
			label: "Sunday",
			want:  date(2025, time.June, 8),
		},
		{
			name:  "matching day-of-month hint",
			label: "Wednesday 4",
			want:  date(2025, time.June, 4),
		},
		{
			name:        "conflicting hint wins with warning",
			label:       "Wednesday 11",
			want:        date(2025, time.June, 11),
			wantWarning: true,
		},
		{
			name:  "hint in parentheses",
			label: "Giovedì (5)",
			want:  date(2025, time.June, 5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warning, err := Resolve(tt.label, weekStart)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.wantWarning {
				assert.NotEmpty(t, warning)
			} else {
				assert.Empty(t, warning)
			}
		})
	}
}

// A hint conflicting across a month boundary must land in the neighboring
// month when that month's date is closer to the weekday resolution.
func TestResolve_HintAcrossMonthBoundary(t *testing.T) {
	weekStart := date(2025, time.June, 30) // Monday

	tests := []struct {
		name        string
		label       string
		want        time.Time
		wantWarning bool
	}{
		{
			name:        "hint lands in the next month",
			label:       "Lunedì 1",
			want:        date(2025, time.July, 1),
			wantWarning: true,
		},
		{
			name:        "hint lands in the previous month",
			label:       "Domenica 29",
			want:        date(2025, time.June, 29),
			wantWarning: true,
		},
		{
			name:  "matching hint across the boundary stays silent",
			label: "Martedì 1",
			want:  date(2025, time.July, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warning, err := Resolve(tt.label, weekStart)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.wantWarning {
				assert.NotEmpty(t, warning)
			} else {
				assert.Empty(t, warning)
			}
		})
	}
}

// The weekday of every resolution must match the label, and without a hint
// the date must fall inside the anchor week.
func TestResolve_WeekdayAlwaysMatches(t *testing.T) {
	weekStart := date(2025, time.June, 2)

	labels := map[string]time.Weekday{
		"Monday":    time.Monday,
		"Tuesday":   time.Tuesday,
		"Wednesday": time.Wednesday,
		"Thursday":  time.Thursday,
		"Friday":    time.Friday,
		"Saturday":  time.Saturday,
		"Sunday":    time.Sunday,
		"Lunedì":    time.Monday,
		"Domenica":  time.Sunday,
	}

	for label, weekday := range labels {
		got, warning, err := Resolve(label, weekStart)
		require.NoError(t, err, label)
		assert.Empty(t, warning, label)
		assert.Equal(t, weekday, got.Weekday(), label)
		assert.False(t, got.Before(weekStart), label)
		assert.True(t, got.Before(weekStart.AddDate(0, 0, 7)), label)
	}
}

func TestResolve_UnknownLabel(t *testing.T) {
	weekStart := date(2025, time.June, 2)

	for _, label := range []string{"", "   ", "Someday", "13:00", "Mon day"} {
		_, _, err := Resolve(label, weekStart)
		require.Error(t, err, label)

		var unknownErr *ErrUnknownDayLabel
		assert.ErrorAs(t, err, &unknownErr, label)
	}
}
