package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rosterly/rosterly-be/internal/audit"
	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/rosterly/rosterly-be/internal/enrich"
	"github.com/rosterly/rosterly-be/internal/extract"
)

// processJob drives one job from PENDING to REVIEW_READY: claim, extract,
// validate, normalize, enrich, persist. The claim is a CAS so a redelivered
// message is processed exactly once.
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	w.logger.Info("Processing job",
		slog.String("job_id", msg.JobID),
		slog.String("worker_id", w.workerID),
	)

	// Step 1: Claim job from database (PENDING -> EXTRACTING)
	job, err := w.storage.ClaimJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			// Job already claimed by another worker - don't requeue
			w.logger.Warn("Job already claimed, skipping",
				slog.String("job_id", msg.JobID),
			)
			return fmt.Errorf("job already claimed: %w", err)
		}
		// Database error - could be transient
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	// The tenant may have discarded the job between submission and claim.
	if job.CancelRequested {
		if err := w.storage.Discard(ctx, job.JobID); err != nil {
			w.logger.Error("Failed to discard canceled job",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
		}
		w.removeUpload(job.ImageRef)
		return domain.ErrJobCanceled
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	draft, warnings, err := w.runExtraction(jobCtx, job)
	if err != nil {
		if errors.Is(err, domain.ErrJobCanceled) {
			return err
		}

		reason := failureReason(err)
		if markErr := w.storage.MarkFailed(ctx, job.JobID, reason); markErr != nil {
			w.logger.Error("Failed to mark job failed",
				slog.String("job_id", job.JobID),
				slog.String("error", markErr.Error()),
			)
		}

		w.audit.Append(job.TenantID, "extraction_failed", map[string]interface{}{
			"job_id": job.JobID,
			"reason": reason,
		}, audit.LevelError)

		w.removeUpload(job.ImageRef)

		// The failure is recorded on the job row; the message must not
		// bounce around the queue.
		return fmt.Errorf("extraction failed: %w", err)
	}

	if err := w.storage.MarkReviewReady(ctx, job.JobID, draft, warnings); err != nil {
		if errors.Is(err, domain.ErrJobCanceled) {
			w.removeUpload(job.ImageRef)
			return err
		}
		return domain.NewRetryableError(fmt.Errorf("failed to persist draft: %w", err))
	}

	w.audit.Append(job.TenantID, "extraction_completed", map[string]interface{}{
		"job_id":        job.JobID,
		"record_count":  len(draft),
		"warning_count": len(warnings),
	}, audit.LevelInfo)

	w.removeUpload(job.ImageRef)

	return nil
}

// runExtraction calls the vision adapter (with retries on transient provider
// failures) and turns its raw entries into a dated draft.
func (w *Worker) runExtraction(ctx context.Context, job *domain.Job) (domain.Draft, domain.Warnings, error) {
	image, err := os.ReadFile(job.ImageRef)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read roster image: %w", err)
	}

	adapter := w.adapterFor(ctx, job)

	entries, err := w.extractWithRetry(ctx, adapter, image, job)
	if err != nil {
		return nil, nil, err
	}

	valid, warnings, err := extract.ValidateEntries(entries)
	if err != nil {
		return nil, nil, err
	}

	draft := domain.Draft{}
	for _, entry := range valid {
		date, warning, err := enrich.Resolve(entry.Day, job.AnchorWeekStart)
		if err != nil {
			// One bad label drops one record, never the job.
			warnings = append(warnings, fmt.Sprintf("entry %q: %s, dropped", entry.Day, err.Error()))
			continue
		}
		if warning != "" {
			warnings = append(warnings, warning)
		}

		cell := extract.NormalizeCell(entry.Cell)
		key := date.Format(domain.DateLayout)

		if _, exists := draft[key]; exists {
			warnings = append(warnings, fmt.Sprintf("duplicate entry for %s, keeping the later one", key))
		}

		draft[key] = domain.ShiftRecord{
			Date:   key,
			Slot1:  cell.Slot1,
			Slot2:  cell.Slot2,
			Note:   entry.Note,
			Source: domain.SourceExtracted,
		}
	}

	if len(draft) == 0 {
		return nil, warnings, domain.ErrNoValidEntries
	}

	return draft, warnings, nil
}

// adapterFor resolves the vision adapter for the job's tenant. Lookup or
// construction failures fall back to the shared adapter rather than failing
// the job.
func (w *Worker) adapterFor(ctx context.Context, job *domain.Job) extract.Adapter {
	key, err := w.storage.TenantGeminiKey(ctx, job.TenantID)
	if err != nil {
		w.logger.Warn("Failed to read tenant extraction key, using shared adapter",
			slog.String("tenant_id", job.TenantID),
			slog.String("error", err.Error()),
		)
		key = ""
	}

	adapter, err := w.adapters.AdapterFor(ctx, key)
	if err != nil {
		w.logger.Warn("Failed to build tenant adapter, using shared adapter",
			slog.String("tenant_id", job.TenantID),
			slog.String("error", err.Error()),
		)
		adapter, _ = w.adapters.AdapterFor(ctx, "")
	}

	return adapter
}

// extractWithRetry retries the adapter on transient provider failures with
// exponential backoff, checking the cancel flag between attempts.
func (w *Worker) extractWithRetry(ctx context.Context, adapter extract.Adapter, image []byte, job *domain.Job) ([]extract.RawEntry, error) {
	backoff := w.extractBackoff
	var lastErr error

	for attempt := 1; attempt <= w.extractAttempts; attempt++ {
		entries, err := adapter.Extract(ctx, image, job.SubjectLabel)
		if err == nil {
			return entries, nil
		}
		lastErr = err

		if !extract.IsTransient(err) || attempt == w.extractAttempts {
			return nil, lastErr
		}

		w.logger.Warn("Transient extraction failure, retrying",
			slog.String("job_id", job.JobID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2

		canceled, err := w.storage.IsCancelRequested(ctx, job.JobID)
		if err == nil && canceled {
			if discardErr := w.storage.Discard(ctx, job.JobID); discardErr != nil {
				w.logger.Error("Failed to discard canceled job",
					slog.String("job_id", job.JobID),
					slog.String("error", discardErr.Error()),
				)
			}
			return nil, domain.ErrJobCanceled
		}
	}

	return nil, lastErr
}

// removeUpload deletes the temp image once the job has reached a state where
// the image is no longer needed.
func (w *Worker) removeUpload(imageRef string) {
	if imageRef == "" {
		return
	}
	if err := os.Remove(imageRef); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("Failed to remove uploaded image",
			slog.String("image_ref", imageRef),
			slog.String("error", err.Error()),
		)
	}
}

// failureReason maps pipeline errors to the human-readable reason stored on
// the job row.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoValidEntries):
		return "extraction produced no valid roster entries"
	case errors.Is(err, context.DeadlineExceeded):
		return "extraction timed out"
	default:
		return err.Error()
	}
}
