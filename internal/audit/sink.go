// Package audit provides the append-only action trail. Appends are
// fire-and-forget: they never block and never fail the pipeline.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// Audit levels.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// Entry is one appended action record.
type Entry struct {
	TenantID  string
	Action    string
	Detail    map[string]interface{}
	Level     string
	CreatedAt time.Time
}

// Sink receives append-only action records.
type Sink interface {
	Append(tenantID, action string, detail map[string]interface{}, level string)
}

// NopSink discards every entry. Used in tests.
type NopSink struct{}

func (NopSink) Append(string, string, map[string]interface{}, string) {}

// PostgresSink buffers entries through a channel and writes them to the
// activity_logs table from a single background goroutine. When the buffer is
// full new entries are dropped rather than blocking the caller.
type PostgresSink struct {
	db      *sqlx.DB
	logger  *slog.Logger
	entries chan Entry
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPostgresSink creates and starts a Postgres-backed audit sink.
func NewPostgresSink(db *sqlx.DB, bufferSize int, logger *slog.Logger) *PostgresSink {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	s := &PostgresSink{
		db:      db,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s
}

// Append enqueues an entry. Never blocks; drops on overflow.
func (s *PostgresSink) Append(tenantID, action string, detail map[string]interface{}, level string) {
	entry := Entry{
		TenantID:  tenantID,
		Action:    action,
		Detail:    detail,
		Level:     level,
		CreatedAt: time.Now(),
	}

	select {
	case s.entries <- entry:
	default:
		s.logger.Warn("Audit buffer full, entry dropped",
			slog.String("tenant_id", tenantID),
			slog.String("action", action),
		)
	}
}

// Close stops the writer after draining buffered entries.
func (s *PostgresSink) Close() {
	s.once.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *PostgresSink) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case entry := <-s.entries:
			s.write(entry)
		case <-s.done:
			for {
				select {
				case entry := <-s.entries:
					s.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *PostgresSink) write(entry Entry) {
	var detail []byte
	if entry.Detail != nil {
		var err error
		detail, err = json.Marshal(entry.Detail)
		if err != nil {
			s.logger.Warn("Failed to marshal audit detail",
				slog.String("action", entry.Action),
				slog.String("error", err.Error()),
			)
			detail = nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO activity_logs (tenant_id, action, detail, level, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := s.db.ExecContext(ctx, query, entry.TenantID, entry.Action, detail, entry.Level, entry.CreatedAt); err != nil {
		// Audit failures are logged and swallowed; they must never surface
		// into the pipeline.
		s.logger.Warn("Failed to write audit entry",
			slog.String("tenant_id", entry.TenantID),
			slog.String("action", entry.Action),
			slog.String("error", err.Error()),
		)
	}
}
