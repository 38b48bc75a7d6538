// Package extract defines the vision extraction boundary: the adapter
// contract for external providers and the structural validation applied to
// everything a provider returns before it may enter the pipeline.
package extract

import (
	"context"
	"errors"
	"fmt"
)

// RawEntry is one roster cell as returned by a provider, before validation.
// Day is the relative day label ("Monday", "Lunedì 2"); Cell is the raw cell
// text containing zero or more time ranges plus whatever decoration the
// roster carries.
type RawEntry struct {
	Day  string `json:"day"`
	Cell string `json:"cell"`
	Note string `json:"note,omitempty"`
}

// Adapter extracts roster entries for a single subject from an image.
type Adapter interface {
	Extract(ctx context.Context, image []byte, subjectLabel string) ([]RawEntry, error)
}

// AdapterError wraps a provider failure. Transient failures (timeouts,
// 5xx-class responses) are retried by the worker with backoff; permanent
// failures fail the job immediately.
type AdapterError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *AdapterError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("extraction adapter %s (%s): %v", e.Op, kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient adapter failure.
func IsTransient(err error) bool {
	var adapterErr *AdapterError
	return errors.As(err, &adapterErr) && adapterErr.Transient
}
