package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rosterly/rosterly-be/internal/domain"
)

// PostgresStore implements TabularStore over the committed_shifts table.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a Postgres-backed tabular store.
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Upsert writes one committed shift keyed by (tenant, date). The ON CONFLICT
// clause makes repeated writes of the same record a no-op on row count.
func (s *PostgresStore) Upsert(ctx context.Context, tenantID string, date time.Time, rec UpsertRecord) error {
	query := `
		INSERT INTO committed_shifts (tenant_id, shift_date, slot_1, slot_2, note, validated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, shift_date)
		DO UPDATE SET slot_1 = EXCLUDED.slot_1,
		              slot_2 = EXCLUDED.slot_2,
		              note = EXCLUDED.note,
		              validated_at = EXCLUDED.validated_at
	`

	_, err := s.db.ExecContext(ctx, query, tenantID, date, rec.Slot1, rec.Slot2, rec.Note, rec.ValidatedAt)
	if err != nil {
		return &StoreError{Op: "upsert", Transient: isTransientPGError(err), Err: err}
	}

	s.logger.Debug("Committed shift upserted",
		slog.String("tenant_id", tenantID),
		slog.String("shift_date", date.Format(domain.DateLayout)),
	)

	return nil
}

// Read returns the tenant's committed shifts inside [from, to], ordered by
// date.
func (s *PostgresStore) Read(ctx context.Context, tenantID string, from, to time.Time) ([]domain.CommittedShift, error) {
	query := `
		SELECT tenant_id, shift_date, slot_1, slot_2, note, validated_at
		FROM committed_shifts
		WHERE tenant_id = $1 AND shift_date >= $2 AND shift_date <= $3
		ORDER BY shift_date
	`

	var shifts []domain.CommittedShift
	err := s.db.SelectContext(ctx, &shifts, query, tenantID, from, to)
	if err != nil {
		return nil, &StoreError{Op: "read", Transient: isTransientPGError(err), Err: fmt.Errorf("failed to read committed shifts: %w", err)}
	}

	return shifts, nil
}

// isTransientPGError classifies driver failures. Connection-level problems
// and serialization conflicts are retryable; constraint and syntax failures
// are not.
func isTransientPGError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"53", // insufficient resources
			"57": // operator intervention (e.g. shutdown in progress)
			return true
		}
		switch pqErr.Code {
		case "40001", "40P01": // serialization failure, deadlock detected
			return true
		}
	}

	return false
}
