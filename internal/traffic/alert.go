// Package traffic classifies travel-time estimates against shift start
// times and recommends departure times.
package traffic

import "time"

// Severity classifies the travel time itself, independent of any delay.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// Severity thresholds in minutes of travel.
const (
	moderateThreshold = 15
	highThreshold     = 25
)

// Alert is the evaluation result. Severity and Delayed are orthogonal: a
// short low-severity trip still raises the delay flag when evaluated close
// enough to shift start.
type Alert struct {
	Severity             Severity  `json:"severity"`
	Delayed              bool      `json:"delayed"`
	RecommendedDeparture time.Time `json:"recommended_departure"`
	TravelMinutes        int       `json:"travel_minutes"`
	MarginMinutes        int       `json:"margin_minutes"`
}

// Evaluate scores a travel estimate against a shift start time.
//
// Severity depends on travelMinutes alone: under 15 is low, 15 through 25
// is moderate, above 25 is high. The delay flag is raised when leaving now
// with the safety margin would miss the shift start.
func Evaluate(travelMinutes int, shiftStart, now time.Time, marginMinutes int) Alert {
	var severity Severity
	switch {
	case travelMinutes < moderateThreshold:
		severity = SeverityLow
	case travelMinutes <= highThreshold:
		severity = SeverityModerate
	default:
		severity = SeverityHigh
	}

	buffer := time.Duration(travelMinutes+marginMinutes) * time.Minute

	return Alert{
		Severity:             severity,
		Delayed:              now.Add(buffer).After(shiftStart),
		RecommendedDeparture: shiftStart.Add(-buffer),
		TravelMinutes:        travelMinutes,
		MarginMinutes:        marginMinutes,
	}
}
