package domain

import "errors"

var (
	// ErrUnauthorized is returned for every credential failure. It is
	// deliberately generic: unknown, malformed and revoked credentials are
	// indistinguishable to the caller.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrJobNotFound is returned when a job cannot be found for the tenant.
	ErrJobNotFound = errors.New("job not found")

	// ErrShiftNotFound is returned when no committed shift exists at a date.
	ErrShiftNotFound = errors.New("no committed shift at date")

	// ErrJobAlreadyClaimed is returned when a claim races another worker.
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in PENDING status")

	// ErrInvalidState is returned when an operation does not apply to the
	// job's current status, e.g. editing a draft before REVIEW_READY.
	ErrInvalidState = errors.New("operation not valid for current job status")

	// ErrEmptyDraft is returned when commit is attempted on a job whose
	// review buffer holds no records.
	ErrEmptyDraft = errors.New("draft contains no records")

	// ErrNoValidEntries is returned when the extraction adapter produced no
	// structurally valid entries at all.
	ErrNoValidEntries = errors.New("extraction produced no valid entries")

	// ErrPartialCommit is returned when some draft records reached the
	// tabular store and some did not. The job stays REVIEW_READY and a
	// retry resumes with the records still unmarked.
	ErrPartialCommit = errors.New("commit wrote only part of the draft")

	// ErrJobCanceled is returned when a job's cancel flag was raised while
	// it was being processed.
	ErrJobCanceled = errors.New("job canceled during processing")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
