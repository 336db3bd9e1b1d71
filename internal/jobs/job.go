package jobs

import (
	"database/sql"
	"time"
)

// Job state constants. A job that finishes successfully is deleted from the
// queue rather than kept in a terminal state; DEAD rows are retained for
// inspection and never redelivered.
const (
	StateWaiting = "WAITING"
	StateLeased  = "LEASED"
	StateDead    = "DEAD"
)

// Job is one unit of transcode work. It is ephemeral work tracking; the
// asset record is the durable deliverable.
type Job struct {
	JobID          string         `db:"job_id"`
	AssetID        string         `db:"asset_id"`
	OwnerID        string         `db:"owner_id"`
	SourceURL      string         `db:"source_url"`
	Attempt        int            `db:"attempt"`
	MaxAttempts    int            `db:"max_attempts"`
	State          string         `db:"state"`
	NextEligibleAt time.Time      `db:"next_eligible_at"`
	LeaseExpiresAt sql.NullTime   `db:"lease_expires_at"`
	WorkerID       sql.NullString `db:"worker_id"`
	ErrorMessage   sql.NullString `db:"error_message"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// Payload identifies the work a transcode job carries
type Payload struct {
	AssetID   string `json:"asset_id"`
	SourceURL string `json:"source_url"`
	OwnerID   string `json:"owner_id"`
}

// Message is the broker notification for one job. The row in Postgres is
// the source of truth; the message is only a wake-up call.
type Message struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}
