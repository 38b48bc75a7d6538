package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rosterly/rosterly-be/internal/domain"
)

// timeRangePattern matches one time range inside a roster cell. Rosters use
// both ":" and "." as the minute separator and a handful of dash glyphs.
var timeRangePattern = regexp.MustCompile(`(\d{1,2})[:.](\d{2})\s*[-–—]\s*(\d{1,2})[:.](\d{2})`)

// NormalizedCell is the result of parsing one cell's raw text.
type NormalizedCell struct {
	Slot1 string
	Slot2 string
}

// NormalizeCell extracts the time ranges from a cell. The chronologically
// first range becomes Slot1; every subsequent range is comma-joined into
// Slot2. Decorative glyphs and commentary never survive into the slots. A
// cell with no recognizable range becomes the REST sentinel.
func NormalizeCell(cell string) NormalizedCell {
	matches := timeRangePattern.FindAllStringSubmatch(cell, -1)
	if len(matches) == 0 {
		return NormalizedCell{Slot1: domain.RestSentinel}
	}

	type timeRange struct {
		start int
		text  string
	}

	ranges := make([]timeRange, 0, len(matches))
	for _, m := range matches {
		startH, _ := strconv.Atoi(m[1])
		startM, _ := strconv.Atoi(m[2])
		endH, _ := strconv.Atoi(m[3])
		endM, _ := strconv.Atoi(m[4])
		ranges = append(ranges, timeRange{
			start: startH*60 + startM,
			text:  fmt.Sprintf("%02d:%02d-%02d:%02d", startH, startM, endH, endM),
		})
	}

	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].start < ranges[j].start
	})

	out := NormalizedCell{Slot1: ranges[0].text}
	if len(ranges) > 1 {
		rest := make([]string, 0, len(ranges)-1)
		for _, r := range ranges[1:] {
			rest = append(rest, r.text)
		}
		out.Slot2 = strings.Join(rest, ", ")
	}
	return out
}

// ValidateEntries applies the structural validation boundary to raw adapter
// output. Entries without a day reference are dropped with a per-entry
// warning; anything surviving has a usable day label and a normalized cell.
// Returns domain.ErrNoValidEntries when nothing survives.
func ValidateEntries(entries []RawEntry) ([]RawEntry, []string, error) {
	valid := make([]RawEntry, 0, len(entries))
	var warnings []string

	for i, e := range entries {
		if strings.TrimSpace(e.Day) == "" {
			warnings = append(warnings, fmt.Sprintf("entry %d: missing day reference, dropped", i))
			continue
		}
		valid = append(valid, e)
	}

	if len(valid) == 0 {
		return nil, warnings, domain.ErrNoValidEntries
	}
	return valid, warnings, nil
}
