package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotStart(t *testing.T) {
	day := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	rome := time.FixedZone("CEST", 2*60*60)

	t.Run("slot time is wall-clock in the roster timezone", func(t *testing.T) {
		start, err := slotStart(day, "08:30-12:30", rome)
		require.NoError(t, err)

		assert.Equal(t, 8, start.Hour())
		assert.Equal(t, 30, start.Minute())
		// 08:30 at UTC+2 is the 06:30 UTC instant; building the start in
		// UTC instead would skew the delay evaluation by the offset.
		assert.Equal(t,
			time.Date(2025, time.June, 2, 6, 30, 0, 0, time.UTC).Unix(),
			start.Unix(),
		)
	})

	t.Run("slot without a range is rejected", func(t *testing.T) {
		_, err := slotStart(day, "REST", rome)
		assert.Error(t, err)
	})

	t.Run("unparseable start time is rejected", func(t *testing.T) {
		_, err := slotStart(day, "8h30-12h30", rome)
		assert.Error(t, err)
	})
}
