package traffic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, time.June, 2, hour, minute, 0, 0, time.UTC)
}

func TestEvaluate_Severity(t *testing.T) {
	tests := []struct {
		travelMinutes int
		want          Severity
	}{
		{0, SeverityLow},
		{14, SeverityLow},
		{15, SeverityModerate},
		{20, SeverityModerate},
		{25, SeverityModerate},
		{26, SeverityHigh},
		{60, SeverityHigh},
	}

	// Evaluated far from shift start so the delay flag never interferes.
	shiftStart := at(18, 0)
	now := at(8, 0)

	for _, tt := range tests {
		alert := Evaluate(tt.travelMinutes, shiftStart, now, 5)
		assert.Equal(t, tt.want, alert.Severity, "travel=%d", tt.travelMinutes)
		assert.False(t, alert.Delayed, "travel=%d", tt.travelMinutes)
	}
}

// Severity and the delay flag are orthogonal signals and must be asserted
// independently.
func TestEvaluate_SeverityAndDelayAreIndependent(t *testing.T) {
	t.Run("high severity without delay", func(t *testing.T) {
		// 28 min travel + 5 margin = 33 min needed, 40 min remaining.
		alert := Evaluate(28, at(10, 0), at(9, 20), 5)

		assert.Equal(t, SeverityHigh, alert.Severity)
		assert.False(t, alert.Delayed)
		assert.Equal(t, at(9, 27), alert.RecommendedDeparture)
	})

	t.Run("low severity with delay", func(t *testing.T) {
		// 10 min travel + 5 margin = 15 min needed, 8 min remaining.
		alert := Evaluate(10, at(10, 0), at(9, 52), 5)

		assert.Equal(t, SeverityLow, alert.Severity)
		assert.True(t, alert.Delayed)
		assert.Equal(t, at(9, 45), alert.RecommendedDeparture)
	})

	t.Run("exactly on time is not delayed", func(t *testing.T) {
		// 20 + 5 = 25 min needed, exactly 25 remaining.
		alert := Evaluate(20, at(10, 0), at(9, 35), 5)

		assert.Equal(t, SeverityModerate, alert.Severity)
		assert.False(t, alert.Delayed)
	})
}

func TestEvaluate_RecommendedDeparture(t *testing.T) {
	alert := Evaluate(30, at(14, 0), at(8, 0), 10)
	assert.Equal(t, at(13, 20), alert.RecommendedDeparture)
	assert.Equal(t, 30, alert.TravelMinutes)
	assert.Equal(t, 10, alert.MarginMinutes)
}

func TestOSRMClient_TravelMinutes(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": "Ok",
			"routes": []map[string]interface{}{
				{"duration": 1530.0}, // 25.5 minutes
			},
		})
	}))
	defer server.Close()

	client := NewOSRMClient(server.URL, 5*time.Second, testLogger())

	minutes, err := client.TravelMinutes(context.Background(), "45.5947,9.0175", "45.5606,9.0560")
	require.NoError(t, err)
	assert.Equal(t, 26, minutes)
	// lat,lng input must reach OSRM as lng,lat.
	assert.Contains(t, gotPath, "9.0175,45.5947;9.0560,45.5606")
}

func TestOSRMClient_NoRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"code": "NoRoute"})
	}))
	defer server.Close()

	client := NewOSRMClient(server.URL, 5*time.Second, testLogger())

	_, err := client.TravelMinutes(context.Background(), "45.5947,9.0175", "45.5606,9.0560")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route")
}
