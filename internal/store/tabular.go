// Package store defines the external tabular store contract the sync engine
// writes committed shifts into, keyed by (tenant, date).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rosterly/rosterly-be/internal/domain"
)

// UpsertRecord is one committed shift row to write.
type UpsertRecord struct {
	Slot1       string
	Slot2       string
	Note        string
	ValidatedAt time.Time
}

// TabularStore is the external store boundary. Upsert must be idempotent:
// writing the same (tenant, date, record) twice leaves the store in the same
// state and never duplicates rows.
type TabularStore interface {
	Upsert(ctx context.Context, tenantID string, date time.Time, rec UpsertRecord) error
	Read(ctx context.Context, tenantID string, from, to time.Time) ([]domain.CommittedShift, error)
}

// StoreError wraps a tabular store failure. Transient failures are retried
// per record inside commit; permanent failures abort the remaining records.
type StoreError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *StoreError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("tabular store %s (%s): %v", e.Op, kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient store failure.
func IsTransient(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr) && storeErr.Transient
}
