package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/rosterly/rosterly-be/shared/postgresql"
)

const jobColumns = `
	job_id, tenant_id, subject_label, image_ref, image_digest,
	status, anchor_week_start, failure_reason, warnings, draft,
	cancel_requested, created_at, updated_at, committed_at
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// CreateJob inserts a new extraction job. Submitting an image that already has
// a live (non-terminal) job for the same tenant does not create a second job:
// the existing one is returned with created=false. A partial unique index on
// (tenant_id, image_digest) backs this against concurrent submissions.
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, bool, error) {
	if existing, err := s.findLiveDuplicate(ctx, job.TenantID, job.ImageDigest); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	query := `
		INSERT INTO jobs (
			job_id, tenant_id, subject_label, image_ref, image_digest,
			status, anchor_week_start, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.TenantID,
		job.SubjectLabel,
		job.ImageRef,
		job.ImageDigest,
		job.Status,
		job.AnchorWeekStart,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		// A concurrent submission of the same image lost the race to the
		// unique index; surface the winner instead of an error.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			existing, findErr := s.findLiveDuplicate(ctx, job.TenantID, job.ImageDigest)
			if findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}

	return job, true, nil
}

// FailJob flips a PENDING job to FAILED with a reason. A job that never made
// it onto the queue must not stay PENDING: no worker would ever claim it, and
// its digest would pin the dedupe index to a dead handle.
func (s *Storage) FailJob(ctx context.Context, tenantID, jobID, reason string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    failure_reason = $2,
		    updated_at = NOW()
		WHERE job_id = $3 AND tenant_id = $4 AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, reason, jobID, tenantID, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return s.stateError(ctx, tenantID, jobID)
	}

	return nil
}

func (s *Storage) findLiveDuplicate(ctx context.Context, tenantID, imageDigest string) (*domain.Job, error) {
	var job domain.Job
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE tenant_id = $1
		  AND image_digest = $2
		  AND status NOT IN ($3, $4, $5)
	`

	err := s.db.GetContext(ctx, &job, query, tenantID, imageDigest,
		domain.JobStatusCommitted, domain.JobStatusFailed, domain.JobStatusDiscarded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check duplicate submission: %w", err)
	}

	return &job, nil
}

// GetJob fetches a job scoped to its owning tenant. Jobs of other tenants are
// indistinguishable from missing ones.
func (s *Storage) GetJob(ctx context.Context, tenantID, jobID string) (*domain.Job, error) {
	var job domain.Job
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE job_id = $1 AND tenant_id = $2
	`

	err := s.db.GetContext(ctx, &job, query, jobID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	TenantID string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE tenant_id = $1
	`
	args := []interface{}{filter.TenantID}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// UpdateDraft replaces the job's review buffer. Only a REVIEW_READY job can be
// touched; anything else gets ErrInvalidState.
func (s *Storage) UpdateDraft(ctx context.Context, tenantID, jobID string, draft domain.Draft) error {
	query := `
		UPDATE jobs
		SET draft = $1,
		    updated_at = NOW()
		WHERE job_id = $2 AND tenant_id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, draft, jobID, tenantID, domain.JobStatusReviewReady)
	if err != nil {
		return fmt.Errorf("failed to update draft: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return s.stateError(ctx, tenantID, jobID)
	}

	return nil
}

// MarkCommitted flips a REVIEW_READY job terminal after every draft record
// reached the tabular store.
func (s *Storage) MarkCommitted(ctx context.Context, tenantID, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    committed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2 AND tenant_id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusCommitted, jobID, tenantID, domain.JobStatusReviewReady)
	if err != nil {
		return fmt.Errorf("failed to mark job committed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return s.stateError(ctx, tenantID, jobID)
	}

	return nil
}

// DiscardJob abandons a job. A REVIEW_READY job is discarded immediately; an
// EXTRACTING job gets its cancel flag raised and the worker discards it when
// it next checks. The resulting status is returned so the caller can tell the
// two apart.
func (s *Storage) DiscardJob(ctx context.Context, tenantID, jobID string) (string, error) {
	discard := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2 AND tenant_id = $3 AND status = $4
	`

	result, err := s.db.ExecContext(ctx, discard, domain.JobStatusDiscarded, jobID, tenantID, domain.JobStatusReviewReady)
	if err != nil {
		return "", fmt.Errorf("failed to discard job: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		return domain.JobStatusDiscarded, nil
	}

	flag := `
		UPDATE jobs
		SET cancel_requested = TRUE,
		    updated_at = NOW()
		WHERE job_id = $1 AND tenant_id = $2 AND status = $3
	`

	result, err = s.db.ExecContext(ctx, flag, jobID, tenantID, domain.JobStatusExtracting)
	if err != nil {
		return "", fmt.Errorf("failed to flag job for cancellation: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		return domain.JobStatusExtracting, nil
	}

	return "", s.stateError(ctx, tenantID, jobID)
}

// stateError distinguishes a job that does not exist from one in the wrong
// status after a conditional update touched zero rows.
func (s *Storage) stateError(ctx context.Context, tenantID, jobID string) error {
	var status string
	err := s.db.GetContext(ctx, &status, `SELECT status FROM jobs WHERE job_id = $1 AND tenant_id = $2`, jobID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrJobNotFound
		}
		return fmt.Errorf("failed to inspect job status: %w", err)
	}
	return fmt.Errorf("%w: job is %s", domain.ErrInvalidState, status)
}

// ListShifts reads committed shifts for a tenant inside [from, to].
func (s *Storage) ListShifts(ctx context.Context, tenantID string, from, to time.Time) ([]domain.CommittedShift, error) {
	var shifts []domain.CommittedShift
	query := `
		SELECT tenant_id, shift_date, slot_1, slot_2, note, validated_at
		FROM committed_shifts
		WHERE tenant_id = $1 AND shift_date >= $2 AND shift_date <= $3
		ORDER BY shift_date ASC
	`

	err := s.db.SelectContext(ctx, &shifts, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list shifts: %w", err)
	}

	return shifts, nil
}

// GetShift reads the committed shift at an exact date.
func (s *Storage) GetShift(ctx context.Context, tenantID string, date time.Time) (*domain.CommittedShift, error) {
	var shift domain.CommittedShift
	query := `
		SELECT tenant_id, shift_date, slot_1, slot_2, note, validated_at
		FROM committed_shifts
		WHERE tenant_id = $1 AND shift_date = $2
	`

	err := s.db.GetContext(ctx, &shift, query, tenantID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrShiftNotFound
		}
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}

	return &shift, nil
}
