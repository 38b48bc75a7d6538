package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rosterly/rosterly-be/internal/audit"
	"github.com/rosterly/rosterly-be/internal/domain"
	"github.com/rosterly/rosterly-be/internal/extract"
	"github.com/rosterly/rosterly-be/internal/worker/storage"
	"github.com/rosterly/rosterly-be/shared/postgresql"
	"github.com/rosterly/rosterly-be/shared/rabbitmq"
)

// AdapterProvider selects the vision adapter for a job, honoring per-tenant
// API key overrides.
type AdapterProvider interface {
	AdapterFor(ctx context.Context, apiKey string) (extract.Adapter, error)
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	DBClient        *postgresql.Client
	RabbitClient    *rabbitmq.Client
	Adapters        AdapterProvider
	Audit           audit.Sink
	Concurrency     int
	JobTimeout      time.Duration
	PrefetchCount   int
	QueueName       string
	ExtractAttempts int
	ExtractBackoff  time.Duration
	Retention       time.Duration
	JanitorInterval time.Duration
}

// jobStore is the persistence surface the worker drives jobs through.
type jobStore interface {
	ClaimJob(ctx context.Context, jobID string) (*domain.Job, error)
	MarkFailed(ctx context.Context, jobID, reason string) error
	MarkReviewReady(ctx context.Context, jobID string, draft domain.Draft, warnings domain.Warnings) error
	TenantGeminiKey(ctx context.Context, tenantID string) (string, error)
	IsCancelRequested(ctx context.Context, jobID string) (bool, error)
	Discard(ctx context.Context, jobID string) error
	DiscardExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// Worker consumes extraction jobs from RabbitMQ and drives them from
// PENDING to REVIEW_READY (or FAILED/DISCARDED).
type Worker struct {
	logger            *slog.Logger
	storage           jobStore
	rabbitClient      *rabbitmq.Client
	adapters          AdapterProvider
	audit             audit.Sink
	concurrency       int
	jobTimeout        time.Duration
	prefetchCount     int
	workerID          string
	rabbitMQQueueName string
	extractAttempts   int
	extractBackoff    time.Duration
	retention         time.Duration
	janitorInterval   time.Duration
	jobsChan          chan *domain.JobMessage
	wg                sync.WaitGroup
	stopChan          chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}

	return &Worker{
		logger:            cfg.Logger,
		storage:           storage.NewStorage(cfg.DBClient.GetDB(), cfg.Logger),
		rabbitClient:      cfg.RabbitClient,
		adapters:          cfg.Adapters,
		audit:             cfg.Audit,
		concurrency:       cfg.Concurrency,
		jobTimeout:        cfg.JobTimeout,
		prefetchCount:     prefetch,
		workerID:          fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		rabbitMQQueueName: cfg.QueueName,
		extractAttempts:   cfg.ExtractAttempts,
		extractBackoff:    cfg.ExtractBackoff,
		retention:         cfg.Retention,
		janitorInterval:   cfg.JanitorInterval,
		jobsChan:          make(chan *domain.JobMessage, cfg.Concurrency),
		stopChan:          make(chan struct{}),
	}
}

// Start begins processing jobs. Blocks until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go w.janitorLoop(ctx)

	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// janitorLoop periodically sweeps REVIEW_READY drafts past the retention
// window into DISCARDED.
func (w *Worker) janitorLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.janitorInterval)
	defer ticker.Stop()

	w.logger.Info("Draft janitor started",
		slog.Duration("interval", w.janitorInterval),
		slog.Duration("retention", w.retention),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			count, err := w.storage.DiscardExpired(ctx, w.retention)
			if err != nil {
				w.logger.Error("Draft sweep failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > 0 {
				w.audit.Append("", "drafts_expired", map[string]interface{}{
					"count": count,
				}, audit.LevelInfo)
			}
		}
	}
}
