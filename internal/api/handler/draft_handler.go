package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rosterly/rosterly-be/internal/api/dto"
	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/rosterly/rosterly-be/internal/review"
)

// EditRecord handles PATCH /api/v1/jobs/:job_id/draft/:date
// Applies a human correction to one draft record
func (h *DraftHandler) EditRecord(c *gin.Context) {
	tenant := TenantFrom(c)
	jobID := c.Param("job_id")
	date := c.Param("date")

	var req dto.EditRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	job, err := h.review.Edit(c.Request.Context(), tenant.TenantID, jobID, date, review.RecordUpdate{
		Slot1: req.Slot1,
		Slot2: req.Slot2,
		Note:  req.Note,
	})
	if err != nil {
		h.respondDraftError(c, jobID, err)
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// AddRecord handles POST /api/v1/jobs/:job_id/draft
// Inserts a record the extraction missed
func (h *DraftHandler) AddRecord(c *gin.Context) {
	tenant := TenantFrom(c)
	jobID := c.Param("job_id")

	var req dto.AddRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "date is required",
		})
		return
	}

	job, err := h.review.Add(c.Request.Context(), tenant.TenantID, jobID, req.Date, req.Slot1, req.Slot2, req.Note)
	if err != nil {
		h.respondDraftError(c, jobID, err)
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// RemoveRecord handles DELETE /api/v1/jobs/:job_id/draft/:date
// Drops a false-positive record from the draft
func (h *DraftHandler) RemoveRecord(c *gin.Context) {
	tenant := TenantFrom(c)
	jobID := c.Param("job_id")
	date := c.Param("date")

	job, err := h.review.Remove(c.Request.Context(), tenant.TenantID, jobID, date)
	if err != nil {
		h.respondDraftError(c, jobID, err)
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// Commit handles POST /api/v1/jobs/:job_id/commit
// Pushes the reviewed draft into the committed shift store
func (h *DraftHandler) Commit(c *gin.Context) {
	tenant := TenantFrom(c)
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.storage.GetJob(c.Request.Context(), tenant.TenantID, jobID)
	if err != nil {
		h.respondDraftError(c, jobID, err)
		return
	}

	result, err := h.syncer.Commit(c.Request.Context(), job)
	if err != nil {
		if errors.Is(err, domain.ErrPartialCommit) {
			// Commit marks for the records that landed are already
			// persisted; the client retries and only the rest is written.
			c.JSON(http.StatusConflict, dto.CommitResponse{
				JobID:          job.JobID,
				Status:         job.Status,
				CommittedCount: result.CommittedCount,
				FailedDates:    result.FailedDates,
			})
			return
		}
		h.respondDraftError(c, jobID, err)
		return
	}

	c.JSON(http.StatusOK, dto.CommitResponse{
		JobID:          job.JobID,
		Status:         job.Status,
		CommittedCount: result.CommittedCount,
	})
}

func (h *DraftHandler) respondDraftError(c *gin.Context, jobID string, err error) {
	var parseErr *time.ParseError
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job or record not found",
		})
	case errors.Is(err, domain.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Job draft is not editable in its current status",
		})
	case errors.Is(err, domain.ErrEmptyDraft):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "Draft contains no records",
		})
	case errors.As(err, &parseErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Dates must be formatted as YYYY-MM-DD",
		})
	default:
		h.logger.Error("Draft operation failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Draft operation failed",
		})
	}
}
