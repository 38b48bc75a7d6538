package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rosterly/rosterly-be/internal/api/dto"
	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/rosterly/rosterly-be/internal/enrich"
	"github.com/rosterly/rosterly-be/internal/traffic"
)

// ListShifts handles GET /api/v1/shifts
// Reads committed shifts inside a date range (defaults to the current week)
func (h *ShiftHandler) ListShifts(c *gin.Context) {
	tenant := TenantFrom(c)

	from := enrich.WeekStart(time.Now().UTC())
	to := from.AddDate(0, 0, 6)

	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse(domain.DateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "from must be formatted as YYYY-MM-DD",
			})
			return
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse(domain.DateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "to must be formatted as YYYY-MM-DD",
			})
			return
		}
		to = parsed
	}

	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "to must not precede from",
		})
		return
	}

	shifts, err := h.storage.ListShifts(c.Request.Context(), tenant.TenantID, from, to)
	if err != nil {
		h.logger.Error("Failed to list shifts", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list shifts",
		})
		return
	}

	out := make([]dto.ShiftDTO, len(shifts))
	for i, shift := range shifts {
		out[i] = dto.ShiftDTO{
			Date:        shift.ShiftDate.Format(domain.DateLayout),
			Slot1:       shift.Slot1,
			Slot2:       shift.Slot2,
			Note:        shift.Note,
			ValidatedAt: shift.ValidatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, dto.ListShiftsResponse{Shifts: out})
}

// Traffic handles GET /api/v1/shifts/:date/traffic
// Evaluates the commute ahead of the shift at the given date
func (h *ShiftHandler) Traffic(c *gin.Context) {
	tenant := TenantFrom(c)

	date, err := time.Parse(domain.DateLayout, c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "date must be formatted as YYYY-MM-DD",
		})
		return
	}

	shift, err := h.storage.GetShift(c.Request.Context(), tenant.TenantID, date)
	if err != nil {
		if errors.Is(err, domain.ErrShiftNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "No committed shift at that date",
			})
			return
		}
		h.logger.Error("Failed to get shift", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get shift",
		})
		return
	}

	if shift.Slot1 == domain.RestSentinel {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "No commute on a rest day",
		})
		return
	}

	shiftStart, err := slotStart(date, shift.Slot1, h.location)
	if err != nil {
		h.logger.Error("Committed shift has unparseable slot",
			slog.String("tenant_id", tenant.TenantID),
			slog.String("slot_1", shift.Slot1),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Shift start time could not be determined",
		})
		return
	}

	origin := h.traffic.DefaultOrigin
	if v := c.Query("origin"); v != "" {
		origin = v
	}

	travelMinutes, err := h.estimator.TravelMinutes(c.Request.Context(), origin, h.traffic.Destination)
	if err != nil {
		h.logger.Error("Travel estimate failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Travel time estimate unavailable",
		})
		return
	}

	alert := traffic.Evaluate(travelMinutes, shiftStart, time.Now(), h.traffic.MarginMinutes)

	c.JSON(http.StatusOK, dto.TrafficResponse{
		Date:                 date.Format(domain.DateLayout),
		ShiftStart:           shiftStart.Format(time.RFC3339),
		Severity:             string(alert.Severity),
		Delayed:              alert.Delayed,
		RecommendedDeparture: alert.RecommendedDeparture.Format(time.RFC3339),
		TravelMinutes:        alert.TravelMinutes,
		MarginMinutes:        alert.MarginMinutes,
	})
}

// slotStart resolves the shift's start instant from its first slot, which is
// always the chronologically earliest range of the day. Slot times are
// wall-clock in the roster's timezone.
func slotStart(date time.Time, slot string, loc *time.Location) (time.Time, error) {
	start, _, ok := strings.Cut(slot, "-")
	if !ok {
		return time.Time{}, errors.New("slot has no time range")
	}
	t, err := time.Parse("15:04", start)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}
