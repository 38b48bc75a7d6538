package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rosterly/rosterly-be/internal/domain"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimJob attempts to claim a job using optimistic locking
// (PENDING -> EXTRACTING). Exactly one worker wins a redelivered message;
// the losers get ErrJobAlreadyClaimed.
func (s *Storage) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING job_id, tenant_id, subject_label, image_ref, image_digest,
		          anchor_week_start, cancel_requested, created_at
	`

	var job domain.Job
	err := s.db.QueryRowContext(ctx, query, domain.JobStatusExtracting, jobID, domain.JobStatusPending).Scan(
		&job.JobID,
		&job.TenantID,
		&job.SubjectLabel,
		&job.ImageRef,
		&job.ImageDigest,
		&job.AnchorWeekStart,
		&job.CancelRequested,
		&job.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Status = domain.JobStatusExtracting

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("tenant_id", job.TenantID),
	)

	return &job, nil
}

// MarkFailed transitions an EXTRACTING job to FAILED with a reason.
func (s *Storage) MarkFailed(ctx context.Context, jobID, reason string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    failure_reason = $2,
		    updated_at = NOW()
		WHERE job_id = $3 AND status = $4
	`

	_, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, reason, jobID, domain.JobStatusExtracting)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	s.logger.Info("Job marked failed",
		slog.String("job_id", jobID),
		slog.String("reason", reason),
	)

	return nil
}

// MarkReviewReady stores the extracted draft and flips the job to
// REVIEW_READY. If the tenant requested cancellation while extraction ran,
// the job is discarded instead and ErrJobCanceled is returned so the result
// is dropped.
func (s *Storage) MarkReviewReady(ctx context.Context, jobID string, draft domain.Draft, warnings domain.Warnings) error {
	query := `
		UPDATE jobs
		SET status = CASE WHEN cancel_requested THEN $1 ELSE $2 END,
		    draft = $3,
		    warnings = $4,
		    updated_at = NOW()
		WHERE job_id = $5 AND status = $6
		RETURNING status
	`

	var status string
	err := s.db.QueryRowContext(ctx, query,
		domain.JobStatusDiscarded, domain.JobStatusReviewReady,
		draft, warnings, jobID, domain.JobStatusExtracting,
	).Scan(&status)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: job is no longer EXTRACTING", domain.ErrInvalidState)
		}
		return fmt.Errorf("failed to mark job review ready: %w", err)
	}

	if status == domain.JobStatusDiscarded {
		s.logger.Info("Job discarded on cancel request",
			slog.String("job_id", jobID),
		)
		return domain.ErrJobCanceled
	}

	s.logger.Info("Job ready for review",
		slog.String("job_id", jobID),
		slog.Int("record_count", len(draft)),
	)

	return nil
}

// TenantGeminiKey returns the tenant's extraction API key override, or empty
// when the tenant uses the shared key.
func (s *Storage) TenantGeminiKey(ctx context.Context, tenantID string) (string, error) {
	var key sql.NullString
	err := s.db.GetContext(ctx, &key, `SELECT gemini_api_key FROM tenants WHERE tenant_id = $1`, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read tenant extraction key: %w", err)
	}
	return key.String, nil
}

// IsCancelRequested re-reads the job's cancel flag mid-pipeline.
func (s *Storage) IsCancelRequested(ctx context.Context, jobID string) (bool, error) {
	var requested bool
	err := s.db.GetContext(ctx, &requested, `SELECT cancel_requested FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrJobNotFound
		}
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return requested, nil
}

// Discard flips an EXTRACTING job straight to DISCARDED.
func (s *Storage) Discard(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	_, err := s.db.ExecContext(ctx, query, domain.JobStatusDiscarded, jobID, domain.JobStatusExtracting)
	if err != nil {
		return fmt.Errorf("failed to discard job: %w", err)
	}

	return nil
}

// DiscardExpired sweeps REVIEW_READY jobs whose drafts have sat unreviewed
// longer than the retention window. Returns how many were discarded.
func (s *Storage) DiscardExpired(ctx context.Context, retention time.Duration) (int64, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE status = $2
		  AND updated_at < $3
	`

	cutoff := time.Now().UTC().Add(-retention)
	result, err := s.db.ExecContext(ctx, query, domain.JobStatusDiscarded, domain.JobStatusReviewReady, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to discard expired jobs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows > 0 {
		s.logger.Info("Expired drafts discarded",
			slog.Int64("count", rows),
			slog.Time("cutoff", cutoff),
		)
	}

	return rows, nil
}
