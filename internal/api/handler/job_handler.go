package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rosterly/rosterly-be/internal/api/dto"
	"github.com/rosterly/rosterly-be/internal/api/storage"
	"github.com/rosterly/rosterly-be/internal/audit"
	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/rosterly/rosterly-be/internal/enrich"
)

// tenantKey is where the auth middleware stores the resolved tenant.
const tenantKey = "tenant"

// TenantFrom returns the tenant the auth middleware resolved for this request.
func TenantFrom(c *gin.Context) domain.Tenant {
	v, _ := c.Get(tenantKey)
	tenant, _ := v.(domain.Tenant)
	return tenant
}

// SetTenant stores the resolved tenant on the request context.
func SetTenant(c *gin.Context, tenant domain.Tenant) {
	c.Set(tenantKey, tenant)
}

// CreateJob handles POST /api/v1/jobs
// Accepts a multipart roster image upload and enqueues an extraction job
func (h *JobHandler) CreateJob(c *gin.Context) {
	tenant := TenantFrom(c)

	var form dto.CreateJobForm
	if err := c.ShouldBind(&form); err != nil {
		h.logger.Error("Invalid request form", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "subject_label is required",
		})
		return
	}

	// The anchor date pins the roster's week; it defaults to today.
	anchorDate := time.Now().UTC()
	if form.AnchorDate != "" {
		parsed, err := time.Parse(domain.DateLayout, form.AnchorDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "anchor_date must be formatted as YYYY-MM-DD",
			})
			return
		}
		anchorDate = parsed
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "image file is required",
		})
		return
	}

	if fileHeader.Size > h.upload.MaxSizeBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("image exceeds maximum size of %d bytes", h.upload.MaxSizeBytes),
		})
		return
	}

	image, err := readUpload(fileHeader)
	if err != nil {
		h.logger.Error("Failed to read upload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read uploaded image",
		})
		return
	}

	digest := sha256.Sum256(image)
	now := time.Now().UTC()

	job := &domain.Job{
		JobID:           uuid.New().String(),
		TenantID:        tenant.TenantID,
		SubjectLabel:    form.SubjectLabel,
		ImageDigest:     hex.EncodeToString(digest[:]),
		Status:          domain.JobStatusPending,
		AnchorWeekStart: enrich.WeekStart(anchorDate),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	job.ImageRef = filepath.Join(h.upload.Dir, job.JobID+filepath.Ext(fileHeader.Filename))
	if err := os.MkdirAll(h.upload.Dir, 0o755); err != nil {
		h.logger.Error("Failed to create upload directory", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store uploaded image",
		})
		return
	}
	if err := os.WriteFile(job.ImageRef, image, 0o644); err != nil {
		h.logger.Error("Failed to store upload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store uploaded image",
		})
		return
	}

	created, isNew, err := h.storage.CreateJob(c.Request.Context(), job)
	if err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	if !isNew {
		// Same image, same tenant, job still in flight: hand back the
		// existing handle instead of spawning a duplicate pipeline run.
		_ = os.Remove(job.ImageRef)
		h.logger.Info("Duplicate submission, returning existing job",
			slog.String("job_id", created.JobID),
			slog.String("tenant_id", tenant.TenantID),
		)
		c.JSON(http.StatusOK, toJobDTO(created))
		return
	}

	body, _ := json.Marshal(domain.JobMessage{JobID: created.JobID})
	if err := h.rabbitClient.PublishWithRetry(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Error("Failed to publish job message",
			slog.String("job_id", created.JobID),
			slog.String("error", err.Error()),
		)
		// No message reached the queue, so no worker will ever claim the
		// row. Fail it to free the image digest for resubmission.
		if failErr := h.storage.FailJob(c.Request.Context(), tenant.TenantID, created.JobID, "extraction job could not be enqueued"); failErr != nil {
			h.logger.Error("Failed to mark unenqueued job failed",
				slog.String("job_id", created.JobID),
				slog.String("error", failErr.Error()),
			)
		}
		_ = os.Remove(created.ImageRef)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	h.audit.Append(tenant.TenantID, "job_submitted", map[string]interface{}{
		"job_id":        created.JobID,
		"subject_label": created.SubjectLabel,
	}, audit.LevelInfo)

	c.JSON(http.StatusAccepted, toJobDTO(created))
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the job's current status and, once ready, its draft records
func (h *JobHandler) GetJob(c *gin.Context) {
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
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists the tenant's jobs with optional status filtering and pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	tenant := TenantFrom(c)

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		TenantID: tenant.TenantID,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.storage.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		cursorObj := storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		}
		nextCursor, err = EncodeJobCursor(&cursorObj)
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// DiscardJob handles POST /api/v1/jobs/:job_id/discard
// Abandons a job: immediately when REVIEW_READY, cooperatively when EXTRACTING
func (h *JobHandler) DiscardJob(c *gin.Context) {
	tenant := TenantFrom(c)
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	status, err := h.storage.DiscardJob(c.Request.Context(), tenant.TenantID, jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
		case errors.Is(err, domain.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Job cannot be discarded in its current status",
			})
		default:
			h.logger.Error("Failed to discard job", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to discard job",
			})
		}
		return
	}

	h.audit.Append(tenant.TenantID, "job_discarded", map[string]interface{}{
		"job_id": jobID,
	}, audit.LevelInfo)

	if status == domain.JobStatusExtracting {
		c.JSON(http.StatusAccepted, gin.H{
			"job_id": jobID,
			"status": status,
			"detail": "cancellation requested, the job will be discarded shortly",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": status,
	})
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

func toJobDTO(job *domain.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobID:           job.JobID,
		SubjectLabel:    job.SubjectLabel,
		Status:          job.Status,
		AnchorWeekStart: job.AnchorWeekStart.Format(domain.DateLayout),
		FailureReason:   job.FailureReason,
		Warnings:        job.Warnings,
		Records:         dto.RecordsFromDraft(job.Draft),
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.Format(time.RFC3339),
	}
	if job.CommittedAt != nil {
		out.CommittedAt = job.CommittedAt.Format(time.RFC3339)
	}
	return out
}
