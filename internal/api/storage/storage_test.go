package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Storage{db: sqlx.NewDb(db, "postgres")}, mock
}

func jobRow(job *domain.Job) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"job_id", "tenant_id", "subject_label", "image_ref", "image_digest",
		"status", "anchor_week_start", "failure_reason", "warnings", "draft",
		"cancel_requested", "created_at", "updated_at", "committed_at",
	}).AddRow(
		job.JobID, job.TenantID, job.SubjectLabel, job.ImageRef, job.ImageDigest,
		job.Status, job.AnchorWeekStart, job.FailureReason, nil, nil,
		job.CancelRequested, job.CreatedAt, job.UpdatedAt, nil,
	)
}

func pendingJob(jobID, digest string) *domain.Job {
	now := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)
	return &domain.Job{
		JobID:           jobID,
		TenantID:        "t-alice",
		SubjectLabel:    "ALICE",
		ImageRef:        "temp/uploads/" + jobID + ".jpg",
		ImageDigest:     digest,
		Status:          domain.JobStatusPending,
		AnchorWeekStart: time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestCreateJob_NewImage(t *testing.T) {
	s, mock := newMockStorage(t)
	job := pendingJob("7e6f3b1c-6e1f-4f9a-8c3a-0d1e2f3a0001", "digest-a")

	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO jobs").WillReturnResult(sqlmock.NewResult(0, 1))

	created, isNew, err := s.CreateJob(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, job.JobID, created.JobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A second submission of the same image while the first job is still live
// must hand back the first job's handle without inserting anything.
func TestCreateJob_LiveDuplicateReturnsExistingHandle(t *testing.T) {
	s, mock := newMockStorage(t)

	existing := pendingJob("7e6f3b1c-6e1f-4f9a-8c3a-0d1e2f3a0001", "digest-a")
	existing.Status = domain.JobStatusExtracting

	mock.ExpectQuery("SELECT").
		WithArgs(existing.TenantID, existing.ImageDigest,
			domain.JobStatusCommitted, domain.JobStatusFailed, domain.JobStatusDiscarded).
		WillReturnRows(jobRow(existing))

	resubmission := pendingJob("7e6f3b1c-6e1f-4f9a-8c3a-0d1e2f3a0002", "digest-a")
	got, isNew, err := s.CreateJob(context.Background(), resubmission)
	require.NoError(t, err)

	assert.False(t, isNew)
	assert.Equal(t, existing.JobID, got.JobID)
	assert.Equal(t, domain.JobStatusExtracting, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet(), "no insert may run for a duplicate")
}

// Two concurrent submissions can both miss the duplicate lookup; the loser of
// the insert race gets the unique violation and must surface the winner.
func TestCreateJob_UniqueViolationReturnsWinner(t *testing.T) {
	s, mock := newMockStorage(t)

	winner := pendingJob("7e6f3b1c-6e1f-4f9a-8c3a-0d1e2f3a0001", "digest-a")

	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO jobs").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectQuery("SELECT").WillReturnRows(jobRow(winner))

	loser := pendingJob("7e6f3b1c-6e1f-4f9a-8c3a-0d1e2f3a0002", "digest-a")
	got, isNew, err := s.CreateJob(context.Background(), loser)
	require.NoError(t, err)

	assert.False(t, isNew)
	assert.Equal(t, winner.JobID, got.JobID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailJob(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec("UPDATE jobs").
		WithArgs(domain.JobStatusFailed, "extraction job could not be enqueued",
			"job-1", "t-alice", domain.JobStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.FailJob(context.Background(), "t-alice", "job-1", "extraction job could not be enqueued")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFailJob_NotPending(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec("UPDATE jobs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM jobs").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(domain.JobStatusExtracting))

	err := s.FailJob(context.Background(), "t-alice", "job-1", "reason")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
