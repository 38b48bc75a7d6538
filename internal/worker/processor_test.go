package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rosterly/rosterly-be/internal/audit"
	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/rosterly/rosterly-be/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	entries  []extract.RawEntry
	failures []error // popped one per Extract call before entries are returned
	calls    int
}

func (a *fakeAdapter) Extract(_ context.Context, _ []byte, _ string) ([]extract.RawEntry, error) {
	a.calls++
	if len(a.failures) > 0 {
		err := a.failures[0]
		a.failures = a.failures[1:]
		return nil, err
	}
	return a.entries, nil
}

type fakeJobStore struct {
	job *domain.Job

	claimErr        error
	cancelRequested bool
	geminiKey       string

	failedReason string
	draft        domain.Draft
	warnings     domain.Warnings
	discarded    bool
	reviewReady  bool
}

func (s *fakeJobStore) ClaimJob(_ context.Context, jobID string) (*domain.Job, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if s.job == nil || s.job.JobID != jobID {
		return nil, domain.ErrJobAlreadyClaimed
	}
	s.job.Status = domain.JobStatusExtracting
	return s.job, nil
}

func (s *fakeJobStore) MarkFailed(_ context.Context, _, reason string) error {
	s.failedReason = reason
	return nil
}

func (s *fakeJobStore) MarkReviewReady(_ context.Context, _ string, draft domain.Draft, warnings domain.Warnings) error {
	if s.cancelRequested {
		s.discarded = true
		return domain.ErrJobCanceled
	}
	s.draft = draft
	s.warnings = warnings
	s.reviewReady = true
	return nil
}

func (s *fakeJobStore) TenantGeminiKey(_ context.Context, _ string) (string, error) {
	return s.geminiKey, nil
}

func (s *fakeJobStore) IsCancelRequested(_ context.Context, _ string) (bool, error) {
	return s.cancelRequested, nil
}

func (s *fakeJobStore) Discard(_ context.Context, _ string) error {
	s.discarded = true
	return nil
}

func (s *fakeJobStore) DiscardExpired(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

// anchor week starting Monday 2025-06-02
var testWeekStart = time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)

// fakeProvider returns the same adapter for every key and records the keys
// it was asked for.
type fakeProvider struct {
	adapter extract.Adapter
	keys    []string
}

func (p *fakeProvider) AdapterFor(_ context.Context, apiKey string) (extract.Adapter, error) {
	p.keys = append(p.keys, apiKey)
	return p.adapter, nil
}

func newTestWorker(t *testing.T, store *fakeJobStore, adapter *fakeAdapter) *Worker {
	t.Helper()
	return &Worker{
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		storage:         store,
		adapters:        &fakeProvider{adapter: adapter},
		audit:           audit.NopSink{},
		jobTimeout:      5 * time.Second,
		extractAttempts: 3,
		extractBackoff:  time.Millisecond,
		workerID:        "worker-test",
	}
}

func testJob(t *testing.T) *domain.Job {
	t.Helper()
	imagePath := filepath.Join(t.TempDir(), "roster.jpg")
	require.NoError(t, os.WriteFile(imagePath, []byte("fake image bytes"), 0o644))
	return &domain.Job{
		JobID:           "0c4e9a46-9d0e-4f6e-b0a3-2f1c8f1e0001",
		TenantID:        "t-alice",
		SubjectLabel:    "ALICE",
		ImageRef:        imagePath,
		Status:          domain.JobStatusPending,
		AnchorWeekStart: testWeekStart,
	}
}

func TestProcessJob(t *testing.T) {
	job := testJob(t)
	store := &fakeJobStore{job: job}
	adapter := &fakeAdapter{entries: []extract.RawEntry{
		{Day: "Monday", Cell: "08:30-12:30, 13:30-15:30 🎵", Note: "inventory"},
		{Day: "Martedì", Cell: "ferie 🌴"},
		{Day: "Wednesday 11", Cell: "09:00-17:00"},
	}}

	w := newTestWorker(t, store, adapter)
	err := w.processJob(context.Background(), &domain.JobMessage{JobID: job.JobID})
	require.NoError(t, err)

	require.True(t, store.reviewReady)
	require.Len(t, store.draft, 3)

	monday := store.draft["2025-06-02"]
	assert.Equal(t, "08:30-12:30", monday.Slot1)
	assert.Equal(t, "13:30-15:30", monday.Slot2)
	assert.Equal(t, "inventory", monday.Note)
	assert.Equal(t, domain.SourceExtracted, monday.Source)

	tuesday := store.draft["2025-06-03"]
	assert.Equal(t, domain.RestSentinel, tuesday.Slot1)
	assert.Empty(t, tuesday.Slot2)

	// "Wednesday 11" carries a day-of-month hint conflicting with the
	// weekday resolution (2025-06-04); the hint wins with a warning.
	hinted, ok := store.draft["2025-06-11"]
	require.True(t, ok, "day-of-month hint must override the weekday date")
	assert.Equal(t, "09:00-17:00", hinted.Slot1)
	assert.NotEmpty(t, store.warnings)

	// The temp image is gone once the draft is persisted.
	_, statErr := os.Stat(job.ImageRef)
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcessJob_AlreadyClaimed(t *testing.T) {
	store := &fakeJobStore{claimErr: domain.ErrJobAlreadyClaimed}
	w := newTestWorker(t, store, &fakeAdapter{})

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: "any"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)
	assert.False(t, w.shouldRequeueJob(err))
}

func TestProcessJob_ClaimDBErrorIsRetryable(t *testing.T) {
	store := &fakeJobStore{claimErr: errors.New("connection refused")}
	w := newTestWorker(t, store, &fakeAdapter{})

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: "any"})
	require.Error(t, err)
	assert.True(t, w.shouldRequeueJob(err))
}

func TestProcessJob_TransientExtractionRetries(t *testing.T) {
	job := testJob(t)
	store := &fakeJobStore{job: job}
	adapter := &fakeAdapter{
		entries: []extract.RawEntry{{Day: "Friday", Cell: "10:00-18:00"}},
		failures: []error{
			&extract.AdapterError{Op: "generate", Transient: true, Err: errors.New("503")},
		},
	}

	w := newTestWorker(t, store, adapter)
	err := w.processJob(context.Background(), &domain.JobMessage{JobID: job.JobID})
	require.NoError(t, err)

	assert.Equal(t, 2, adapter.calls)
	assert.True(t, store.reviewReady)
	assert.Contains(t, store.draft, "2025-06-06")
}

func TestProcessJob_PermanentExtractionFailsJob(t *testing.T) {
	job := testJob(t)
	store := &fakeJobStore{job: job}
	adapter := &fakeAdapter{failures: []error{
		&extract.AdapterError{Op: "generate", Transient: false, Err: errors.New("subject not found in roster")},
	}}

	w := newTestWorker(t, store, adapter)
	err := w.processJob(context.Background(), &domain.JobMessage{JobID: job.JobID})
	require.Error(t, err)

	assert.Equal(t, 1, adapter.calls, "permanent failures are not retried")
	assert.Contains(t, store.failedReason, "subject not found")
	assert.False(t, store.reviewReady)
	assert.False(t, w.shouldRequeueJob(err), "failure is recorded on the job row")
}

func TestProcessJob_ExhaustedRetriesFailJob(t *testing.T) {
	job := testJob(t)
	store := &fakeJobStore{job: job}
	transient := func() error {
		return &extract.AdapterError{Op: "generate", Transient: true, Err: errors.New("429")}
	}
	adapter := &fakeAdapter{failures: []error{transient(), transient(), transient()}}

	w := newTestWorker(t, store, adapter)
	err := w.processJob(context.Background(), &domain.JobMessage{JobID: job.JobID})
	require.Error(t, err)

	assert.Equal(t, 3, adapter.calls)
	assert.NotEmpty(t, store.failedReason)
	assert.False(t, w.shouldRequeueJob(err))
}

func TestProcessJob_NoValidEntriesFailsJob(t *testing.T) {
	job := testJob(t)
	store := &fakeJobStore{job: job}
	adapter := &fakeAdapter{entries: []extract.RawEntry{
		{Day: "", Cell: "08:00-12:00"},
	}}

	w := newTestWorker(t, store, adapter)
	err := w.processJob(context.Background(), &domain.JobMessage{JobID: job.JobID})
	require.Error(t, err)

	assert.Equal(t, "extraction produced no valid roster entries", store.failedReason)
}

func TestProcessJob_UnknownDayLabelsDropRecordsNotJob(t *testing.T) {
	job := testJob(t)
	store := &fakeJobStore{job: job}
	adapter := &fakeAdapter{entries: []extract.RawEntry{
		{Day: "Monday", Cell: "08:00-12:00"},
		{Day: "Funday", Cell: "09:00-13:00"},
	}}

	w := newTestWorker(t, store, adapter)
	err := w.processJob(context.Background(), &domain.JobMessage{JobID: job.JobID})
	require.NoError(t, err)

	assert.Len(t, store.draft, 1)
	require.Len(t, store.warnings, 1)
	assert.Contains(t, store.warnings[0], "Funday")
}

func TestProcessJob_CancelBeforeExtraction(t *testing.T) {
	job := testJob(t)
	job.CancelRequested = true
	store := &fakeJobStore{job: job}
	adapter := &fakeAdapter{}

	w := newTestWorker(t, store, adapter)
	err := w.processJob(context.Background(), &domain.JobMessage{JobID: job.JobID})
	require.ErrorIs(t, err, domain.ErrJobCanceled)

	assert.True(t, store.discarded)
	assert.Zero(t, adapter.calls)
	assert.False(t, w.shouldRequeueJob(err))
}

func TestProcessJob_TenantKeyOverrideReachesProvider(t *testing.T) {
	job := testJob(t)
	store := &fakeJobStore{job: job, geminiKey: "tenant-key"}
	adapter := &fakeAdapter{entries: []extract.RawEntry{
		{Day: "Monday", Cell: "08:00-12:00"},
	}}

	w := newTestWorker(t, store, adapter)
	provider := w.adapters.(*fakeProvider)

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: job.JobID})
	require.NoError(t, err)

	assert.Equal(t, []string{"tenant-key"}, provider.keys)
}

func TestProcessJob_DuplicateDatesKeepLaterEntry(t *testing.T) {
	job := testJob(t)
	store := &fakeJobStore{job: job}
	adapter := &fakeAdapter{entries: []extract.RawEntry{
		{Day: "Monday", Cell: "08:00-12:00"},
		{Day: "Lunedì", Cell: "14:00-20:00"},
	}}

	w := newTestWorker(t, store, adapter)
	err := w.processJob(context.Background(), &domain.JobMessage{JobID: job.JobID})
	require.NoError(t, err)

	require.Len(t, store.draft, 1)
	assert.Equal(t, "14:00-20:00", store.draft["2025-06-02"].Slot1)
	require.NotEmpty(t, store.warnings)
	assert.Contains(t, store.warnings[len(store.warnings)-1], "duplicate entry")
}
