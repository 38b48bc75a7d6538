// Package syncer pushes reviewed drafts into the external tabular store.
// Commit is resumable: each record carries a commit mark, and a retry after a
// partial failure only writes the records still unmarked.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rosterly/rosterly-be/internal/audit"
	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/rosterly/rosterly-be/internal/store"
)

// JobStore is the job persistence surface the engine needs: saving the
// per-record commit marks and flipping the job terminal.
type JobStore interface {
	UpdateDraft(ctx context.Context, tenantID, jobID string, draft domain.Draft) error
	MarkCommitted(ctx context.Context, tenantID, jobID string) error
}

// CommitResult reports what a commit attempt achieved.
type CommitResult struct {
	CommittedCount int
	FailedDates    []string
}

// Engine writes draft records into the tabular store in date order.
type Engine struct {
	store       store.TabularStore
	jobs        JobStore
	audit       audit.Sink
	maxAttempts int
	baseBackoff time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewEngine creates a sync engine. maxAttempts bounds the per-record retries
// on transient store failures; baseBackoff is doubled between attempts.
func NewEngine(tabular store.TabularStore, jobs JobStore, sink audit.Sink, maxAttempts int, baseBackoff time.Duration, logger *slog.Logger) *Engine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Engine{
		store:       tabular,
		jobs:        jobs,
		audit:       sink,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
		logger:      logger,
		now:         time.Now,
	}
}

// Commit validates the job's draft and upserts every record not yet marked
// committed, in ascending date order. Records already marked from a previous
// attempt are skipped, so re-running after a partial failure is safe and
// re-running a fully committed draft writes nothing new.
//
// On success the job is flipped to COMMITTED. On a partial failure the job
// stays REVIEW_READY, the marks written so far are persisted, and the error
// wraps domain.ErrPartialCommit.
func (e *Engine) Commit(ctx context.Context, job *domain.Job) (CommitResult, error) {
	var result CommitResult

	if job.Status != domain.JobStatusReviewReady {
		return result, domain.ErrInvalidState
	}
	if len(job.Draft) == 0 {
		return result, domain.ErrEmptyDraft
	}

	dates := job.Draft.Dates()
	for _, date := range dates {
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			return result, fmt.Errorf("draft record has invalid date %q: %w", date, err)
		}
	}

	validatedAt := e.now().UTC()
	for _, date := range dates {
		rec := job.Draft[date]
		if rec.Committed {
			continue
		}

		day, _ := time.Parse(domain.DateLayout, date)
		err := e.upsertWithRetry(ctx, job.TenantID, day, store.UpsertRecord{
			Slot1:       rec.Slot1,
			Slot2:       rec.Slot2,
			Note:        rec.Note,
			ValidatedAt: validatedAt,
		})
		if err != nil {
			result.FailedDates = append(result.FailedDates, date)
			e.logger.Error("failed to commit record",
				slog.String("job_id", job.JobID),
				slog.String("date", date),
				slog.String("error", err.Error()),
			)
			if !store.IsTransient(err) {
				// A permanent failure will not get better for the
				// remaining records; stop and report what is left.
				result.FailedDates = append(result.FailedDates, remainingDates(dates, job.Draft, date)...)
				break
			}
			continue
		}

		rec.Committed = true
		job.Draft[date] = rec
		result.CommittedCount++

		// Persist the mark after every success so a crash between
		// records never rewrites what already landed.
		if err := e.jobs.UpdateDraft(ctx, job.TenantID, job.JobID, job.Draft); err != nil {
			return result, fmt.Errorf("failed to persist commit marks: %w", err)
		}
	}

	if len(result.FailedDates) > 0 {
		return result, fmt.Errorf("%w: %d of %d records failed",
			domain.ErrPartialCommit, len(result.FailedDates), len(dates))
	}

	if err := e.jobs.MarkCommitted(ctx, job.TenantID, job.JobID); err != nil {
		return result, fmt.Errorf("failed to finalize job: %w", err)
	}
	job.Status = domain.JobStatusCommitted

	e.audit.Append(job.TenantID, "draft_committed", map[string]interface{}{
		"job_id":       job.JobID,
		"record_count": len(dates),
	}, audit.LevelInfo)

	e.logger.Info("draft committed",
		slog.String("job_id", job.JobID),
		slog.Int("records", len(dates)),
		slog.Int("written", result.CommittedCount),
	)

	return result, nil
}

func (e *Engine) upsertWithRetry(ctx context.Context, tenantID string, date time.Time, rec store.UpsertRecord) error {
	backoff := e.baseBackoff
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		lastErr = e.store.Upsert(ctx, tenantID, date, rec)
		if lastErr == nil {
			return nil
		}
		if !store.IsTransient(lastErr) || attempt == e.maxAttempts {
			return lastErr
		}

		e.logger.Warn("transient store failure, retrying",
			slog.String("tenant_id", tenantID),
			slog.Time("date", date),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return lastErr
}

// remainingDates lists the uncommitted dates strictly after the one that just
// failed permanently.
func remainingDates(dates []string, draft domain.Draft, after string) []string {
	var out []string
	past := false
	for _, d := range dates {
		if d == after {
			past = true
			continue
		}
		if past && !draft[d].Committed {
			out = append(out, d)
		}
	}
	return out
}
