package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rosterly/rosterly-be/internal/api/storage"
	"github.com/rosterly/rosterly-be/internal/audit"
	"github.com/rosterly/rosterly-be/internal/config"
	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobStorage struct {
	created  *domain.Job
	existing *domain.Job // returned as the live duplicate when set

	failedJobID  string
	failedReason string
}

func (s *fakeJobStorage) CreateJob(_ context.Context, job *domain.Job) (*domain.Job, bool, error) {
	if s.existing != nil {
		return s.existing, false, nil
	}
	s.created = job
	return job, true, nil
}

func (s *fakeJobStorage) GetJob(_ context.Context, _, _ string) (*domain.Job, error) {
	return nil, domain.ErrJobNotFound
}

func (s *fakeJobStorage) ListJobs(_ context.Context, _ storage.JobFilter) ([]domain.Job, error) {
	return nil, nil
}

func (s *fakeJobStorage) DiscardJob(_ context.Context, _, _ string) (string, error) {
	return "", domain.ErrJobNotFound
}

func (s *fakeJobStorage) FailJob(_ context.Context, _, jobID, reason string) error {
	s.failedJobID = jobID
	s.failedReason = reason
	return nil
}

type fakePublisher struct {
	err       error
	published [][]byte
}

func (p *fakePublisher) PublishWithRetry(_ context.Context, body []byte, _ string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, body)
	return nil
}

func newJobHandler(t *testing.T, store *fakeJobStorage, pub *fakePublisher) *JobHandler {
	t.Helper()
	return &JobHandler{
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		storage:      store,
		rabbitClient: pub,
		audit:        audit.NopSink{},
		upload:       config.UploadConfig{Dir: t.TempDir(), MaxSizeBytes: 1 << 20},
	}
}

func multipartJobRequest(t *testing.T, subjectLabel string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("subject_label", subjectLabel))
	fw, err := mw.CreateFormFile("image", "roster.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake image bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newTestContext(req *http.Request) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	SetTenant(c, domain.Tenant{TenantID: "t-alice"})
	return c, rec
}

func TestCreateJob(t *testing.T) {
	store := &fakeJobStorage{}
	pub := &fakePublisher{}
	h := newJobHandler(t, store, pub)

	c, rec := newTestContext(multipartJobRequest(t, "ALICE"))
	h.CreateJob(c)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, store.created)
	require.Len(t, pub.published, 1)

	var msg domain.JobMessage
	require.NoError(t, json.Unmarshal(pub.published[0], &msg))
	assert.Equal(t, store.created.JobID, msg.JobID)
	assert.Empty(t, store.failedJobID)
}

// A publish failure must not strand the row in PENDING: no message reached
// the queue, so no worker will ever claim it, and the dedupe index would pin
// the image digest to a handle that can never progress.
func TestCreateJob_PublishFailureFailsJob(t *testing.T) {
	store := &fakeJobStorage{}
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	h := newJobHandler(t, store, pub)

	c, rec := newTestContext(multipartJobRequest(t, "ALICE"))
	h.CreateJob(c)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, store.created)
	assert.Equal(t, store.created.JobID, store.failedJobID)
	assert.NotEmpty(t, store.failedReason)

	// The orphaned upload goes away with the job.
	_, statErr := os.Stat(store.created.ImageRef)
	assert.True(t, os.IsNotExist(statErr))
}

func TestCreateJob_DuplicateReturnsExistingHandle(t *testing.T) {
	existing := &domain.Job{
		JobID:           "7e6f3b1c-6e1f-4f9a-8c3a-0d1e2f3a0001",
		TenantID:        "t-alice",
		SubjectLabel:    "ALICE",
		Status:          domain.JobStatusExtracting,
		AnchorWeekStart: time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC),
		CreatedAt:       time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC),
	}
	store := &fakeJobStorage{existing: existing}
	pub := &fakePublisher{}
	h := newJobHandler(t, store, pub)

	c, rec := newTestContext(multipartJobRequest(t, "ALICE"))
	h.CreateJob(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, pub.published, "a duplicate submission must not enqueue a second message")

	var body struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, existing.JobID, body.JobID)
}

func TestCreateJob_MissingSubjectLabel(t *testing.T) {
	h := newJobHandler(t, &fakeJobStorage{}, &fakePublisher{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "roster.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("fake image bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c, rec := newTestContext(req)
	h.CreateJob(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
