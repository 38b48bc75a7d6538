package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/rosterly/rosterly-be/internal/api/storage"
	"github.com/rosterly/rosterly-be/internal/audit"
	"github.com/rosterly/rosterly-be/internal/auth"
	"github.com/rosterly/rosterly-be/internal/config"
	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/rosterly/rosterly-be/internal/review"
	"github.com/rosterly/rosterly-be/internal/syncer"
	"github.com/rosterly/rosterly-be/internal/traffic"
	"github.com/rosterly/rosterly-be/shared/rabbitmq"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Storage      *storage.Storage
	RabbitClient *rabbitmq.Client
	Review       *review.Service
	Syncer       *syncer.Engine
	Resolver     *auth.Resolver
	Credentials  *auth.PostgresCredentialStore
	Estimator    traffic.Estimator
	Audit        audit.Sink
	Upload       config.UploadConfig
	Traffic      config.TrafficConfig
}

// jobStorage is the persistence surface the job handler works through.
type jobStorage interface {
	CreateJob(ctx context.Context, job *domain.Job) (*domain.Job, bool, error)
	GetJob(ctx context.Context, tenantID, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	DiscardJob(ctx context.Context, tenantID, jobID string) (string, error)
	FailJob(ctx context.Context, tenantID, jobID, reason string) error
}

// jobPublisher enqueues extraction job messages.
type jobPublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// JobHandler handles job lifecycle HTTP requests
type JobHandler struct {
	logger       *slog.Logger
	storage      jobStorage
	rabbitClient jobPublisher
	audit        audit.Sink
	upload       config.UploadConfig
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:       deps.Logger,
		storage:      deps.Storage,
		rabbitClient: deps.RabbitClient,
		audit:        deps.Audit,
		upload:       deps.Upload,
	}
}

// DraftHandler handles review buffer HTTP requests
type DraftHandler struct {
	logger  *slog.Logger
	storage *storage.Storage
	review  *review.Service
	syncer  *syncer.Engine
}

// NewDraftHandler creates a new DraftHandler instance
func NewDraftHandler(deps *Dependencies) *DraftHandler {
	return &DraftHandler{
		logger:  deps.Logger,
		storage: deps.Storage,
		review:  deps.Review,
		syncer:  deps.Syncer,
	}
}

// ShiftHandler handles committed shift and traffic HTTP requests
type ShiftHandler struct {
	logger    *slog.Logger
	storage   *storage.Storage
	estimator traffic.Estimator
	traffic   config.TrafficConfig
	location  *time.Location
}

// NewShiftHandler creates a new ShiftHandler instance. Roster slots are
// wall-clock times in the configured timezone; an unknown zone falls back to
// UTC.
func NewShiftHandler(deps *Dependencies) *ShiftHandler {
	loc, err := time.LoadLocation(deps.Traffic.Timezone)
	if err != nil {
		deps.Logger.Warn("Unknown traffic timezone, falling back to UTC",
			slog.String("timezone", deps.Traffic.Timezone),
		)
		loc = time.UTC
	}

	return &ShiftHandler{
		logger:    deps.Logger,
		storage:   deps.Storage,
		estimator: deps.Estimator,
		traffic:   deps.Traffic,
		location:  loc,
	}
}

// AdminHandler handles tenant administration HTTP requests
type AdminHandler struct {
	logger      *slog.Logger
	credentials *auth.PostgresCredentialStore
	resolver    *auth.Resolver
	audit       audit.Sink
}

// NewAdminHandler creates a new AdminHandler instance
func NewAdminHandler(deps *Dependencies) *AdminHandler {
	return &AdminHandler{
		logger:      deps.Logger,
		credentials: deps.Credentials,
		resolver:    deps.Resolver,
		audit:       deps.Audit,
	}
}
