// Package review holds the mutable draft of extracted records between
// extraction and commit. The buffer is owned by the job's tenant and is only
// editable while the job is REVIEW_READY.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rosterly/rosterly-be/internal/audit"
	"github.com/rosterly/rosterly-be/internal/domain"
)

// JobStore is the persistence surface the buffer mutates drafts through.
// UpdateDraft must only succeed while the job is still REVIEW_READY.
type JobStore interface {
	GetJob(ctx context.Context, tenantID, jobID string) (*domain.Job, error)
	UpdateDraft(ctx context.Context, tenantID, jobID string, draft domain.Draft) error
}

// RecordUpdate carries the fields of a human correction. Nil fields are left
// unchanged.
type RecordUpdate struct {
	Slot1 *string
	Slot2 *string
	Note  *string
}

// Service applies review operations to job drafts.
type Service struct {
	jobs   JobStore
	audit  audit.Sink
	logger *slog.Logger
}

// NewService creates a review buffer service.
func NewService(jobs JobStore, sink audit.Sink, logger *slog.Logger) *Service {
	return &Service{jobs: jobs, audit: sink, logger: logger}
}

// Edit applies a free-form correction to the record at date. The record's
// provenance flips to "edited" and any prior commit mark is cleared so the
// next commit rewrites it.
func (s *Service) Edit(ctx context.Context, tenantID, jobID, date string, upd RecordUpdate) (*domain.Job, error) {
	job, draft, err := s.editableDraft(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	rec, ok := draft[date]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	if upd.Slot1 != nil {
		rec.Slot1 = *upd.Slot1
	}
	if upd.Slot2 != nil {
		rec.Slot2 = *upd.Slot2
	}
	if upd.Note != nil {
		rec.Note = *upd.Note
	}
	if rec.Slot1 == "" {
		rec.Slot1 = domain.RestSentinel
	}
	rec.Source = domain.SourceEdited
	rec.Committed = false
	draft[date] = rec

	if err := s.persist(ctx, job, draft); err != nil {
		return nil, err
	}

	s.audit.Append(tenantID, "draft_edited", map[string]interface{}{
		"job_id": jobID,
		"date":   date,
	}, audit.LevelInfo)

	return job, nil
}

// Add inserts a record the extraction missed. A record already present at
// the same date is overwritten, never duplicated.
func (s *Service) Add(ctx context.Context, tenantID, jobID, date, slot1, slot2, note string) (*domain.Job, error) {
	job, draft, err := s.editableDraft(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	if slot1 == "" {
		slot1 = domain.RestSentinel
	}

	draft[date] = domain.ShiftRecord{
		Date:   date,
		Slot1:  slot1,
		Slot2:  slot2,
		Note:   note,
		Source: domain.SourceManual,
	}

	if err := s.persist(ctx, job, draft); err != nil {
		return nil, err
	}

	s.audit.Append(tenantID, "draft_record_added", map[string]interface{}{
		"job_id": jobID,
		"date":   date,
	}, audit.LevelInfo)

	return job, nil
}

// Remove deletes a false-positive record from the draft.
func (s *Service) Remove(ctx context.Context, tenantID, jobID, date string) (*domain.Job, error) {
	job, draft, err := s.editableDraft(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}

	if _, ok := draft[date]; !ok {
		return nil, domain.ErrJobNotFound
	}
	delete(draft, date)

	if err := s.persist(ctx, job, draft); err != nil {
		return nil, err
	}

	s.audit.Append(tenantID, "draft_record_removed", map[string]interface{}{
		"job_id": jobID,
		"date":   date,
	}, audit.LevelInfo)

	return job, nil
}

func (s *Service) editableDraft(ctx context.Context, tenantID, jobID string) (*domain.Job, domain.Draft, error) {
	job, err := s.jobs.GetJob(ctx, tenantID, jobID)
	if err != nil {
		return nil, nil, err
	}

	if job.Status != domain.JobStatusReviewReady {
		return nil, nil, domain.ErrInvalidState
	}

	draft := job.Draft
	if draft == nil {
		draft = domain.Draft{}
	}

	return job, draft, nil
}

func (s *Service) persist(ctx context.Context, job *domain.Job, draft domain.Draft) error {
	if err := s.jobs.UpdateDraft(ctx, job.TenantID, job.JobID, draft); err != nil {
		return fmt.Errorf("failed to persist draft: %w", err)
	}
	job.Draft = draft
	return nil
}
