// Package enrich converts relative day labels from extracted roster cells
// into absolute calendar dates within a fixed anchor week.
package enrich

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday names accepted in day labels, lowercase. Rosters in the field mix
// English and Italian.
var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
	"lunedì":    time.Monday,
	"lunedi":    time.Monday,
	"martedì":   time.Tuesday,
	"martedi":   time.Tuesday,
	"mercoledì": time.Wednesday,
	"mercoledi": time.Wednesday,
	"giovedì":   time.Thursday,
	"giovedi":   time.Thursday,
	"venerdì":   time.Friday,
	"venerdi":   time.Friday,
	"sabato":    time.Saturday,
	"domenica":  time.Sunday,
}

// ErrUnknownDayLabel is returned when the label's weekday token cannot be
// recognized. The caller drops the single record, not the whole job.
type ErrUnknownDayLabel struct {
	Label string
}

func (e *ErrUnknownDayLabel) Error() string {
	return fmt.Sprintf("unknown day label %q", e.Label)
}

// WeekStart returns the Monday of the ISO week containing t, at midnight in
// t's location. This is the anchor fixed at job-creation time.
func WeekStart(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := int(t.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	return t.AddDate(0, 0, -offset)
}

// Resolve maps a day label to the concrete date within the anchor week whose
// weekday matches the label. The label is a weekday name optionally followed
// by a day-of-month hint ("Monday 2"). When the hint conflicts with the
// weekday-only resolution the hint wins and a warning is returned.
func Resolve(dayLabel string, weekStart time.Time) (time.Time, string, error) {
	fields := strings.Fields(strings.TrimSpace(dayLabel))
	if len(fields) == 0 {
		return time.Time{}, "", &ErrUnknownDayLabel{Label: dayLabel}
	}

	weekday, ok := weekdayNames[strings.ToLower(fields[0])]
	if !ok {
		return time.Time{}, "", &ErrUnknownDayLabel{Label: dayLabel}
	}

	offset := int(weekday) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	resolved := weekStart.AddDate(0, 0, offset)

	hint, hasHint := dayOfMonthHint(fields[1:])
	if !hasHint || hint == resolved.Day() {
		return resolved, "", nil
	}

	// The explicit day-of-month on the roster wins over the weekday
	// resolution. The anchor week can straddle a month boundary, so take
	// the month whose date with that day lies nearest the resolution.
	hinted := nearestWithDay(resolved, hint)
	warning := fmt.Sprintf(
		"day label %q: day-of-month hint %d conflicts with weekday resolution %s, using %s",
		dayLabel, hint, resolved.Format("2006-01-02"), hinted.Format("2006-01-02"),
	)
	return hinted, warning, nil
}

// nearestWithDay returns the date carrying the given day-of-month closest to
// ref, considering ref's month and both neighbors. Candidates that overflow a
// short month are skipped.
func nearestWithDay(ref time.Time, day int) time.Time {
	var best time.Time
	var bestDiff time.Duration

	for _, months := range []int{-1, 0, 1} {
		candidate := time.Date(ref.Year(), ref.Month()+time.Month(months), day, 0, 0, 0, 0, ref.Location())
		if candidate.Day() != day {
			continue
		}
		diff := candidate.Sub(ref)
		if diff < 0 {
			diff = -diff
		}
		if best.IsZero() || diff < bestDiff {
			best = candidate
			bestDiff = diff
		}
	}

	return best
}

// dayOfMonthHint scans the remaining label tokens for a bare day number.
func dayOfMonthHint(fields []string) (int, bool) {
	for _, f := range fields {
		f = strings.Trim(f, "().,")
		n, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		if n >= 1 && n <= 31 {
			return n, true
		}
	}
	return 0, false
}
