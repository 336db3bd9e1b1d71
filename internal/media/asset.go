package media

import (
	"database/sql"
	"time"
)

// Asset kind constants
const (
	KindImage = "IMAGE"
	KindVideo = "VIDEO"
)

// Asset status constants
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusReady      = "READY"
	StatusFailed     = "FAILED"
)

// Asset represents one uploaded media item and its derived artifacts.
// For videos the progress field tracks the transcode percentage; images are
// processed inline and go straight to READY.
type Asset struct {
	ID           string         `db:"id"`
	OwnerID      string         `db:"owner_id"`
	Kind         string         `db:"kind"`
	Status       string         `db:"status"`
	Progress     int            `db:"progress"`
	PrimaryURL   sql.NullString `db:"primary_url"`
	ThumbnailURL sql.NullString `db:"thumbnail_url"`
	ErrorMessage sql.NullString `db:"error_message"`
	Width        int            `db:"width"`
	Height       int            `db:"height"`
	SizeBytes    int64          `db:"size_bytes"`
	Encoding     string         `db:"encoding"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// IsTerminal reports whether the asset has reached a final state
func (a *Asset) IsTerminal() bool {
	return a.Status == StatusReady || a.Status == StatusFailed
}
