package domain

import "time"

// Job status constants. Transitions are strictly monotonic:
// PENDING -> EXTRACTING -> REVIEW_READY -> COMMITTED, with
// EXTRACTING -> FAILED and REVIEW_READY -> DISCARDED as alternate exits.
const (
	JobStatusPending     = "PENDING"
	JobStatusExtracting  = "EXTRACTING"
	JobStatusReviewReady = "REVIEW_READY"
	JobStatusCommitted   = "COMMITTED"
	JobStatusFailed      = "FAILED"
	JobStatusDiscarded   = "DISCARDED"
)

// IsTerminalStatus reports whether a job in the given status can never
// transition again.
func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusCommitted, JobStatusFailed, JobStatusDiscarded:
		return true
	}
	return false
}

// Job is one extraction-to-commit attempt for a single uploaded image.
type Job struct {
	JobID           string     `db:"job_id"`
	TenantID        string     `db:"tenant_id"`
	SubjectLabel    string     `db:"subject_label"`
	ImageRef        string     `db:"image_ref"`
	ImageDigest     string     `db:"image_digest"`
	Status          string     `db:"status"`
	AnchorWeekStart time.Time  `db:"anchor_week_start"`
	FailureReason   string     `db:"failure_reason"`
	Warnings        Warnings   `db:"warnings"`
	Draft           Draft      `db:"draft"`
	CancelRequested bool       `db:"cancel_requested"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	CommittedAt     *time.Time `db:"committed_at"`
}

// JobMessage is the queue payload linking a RabbitMQ delivery to a job row.
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}
