package media

import (
	"errors"
	"fmt"
)

var (
	// ErrAssetNotFound is returned when an asset cannot be found in the database
	ErrAssetNotFound = errors.New("asset not found")

	// ErrUnsupportedMediaType is returned for uploads that are neither image nor video.
	// It is raised at ingest time and never enters the job queue.
	ErrUnsupportedMediaType = errors.New("only images and videos are allowed")

	// ErrRetriesExhausted is returned when a transcode job has used up all its attempts
	ErrRetriesExhausted = errors.New("max transcode attempts exhausted")
)

// TransientError wraps a download or upload I/O failure. Transient failures
// are retried under the queue's backoff policy.
type TransientError struct {
	Op  string // "download" or "upload"
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s error: %s", e.Op, e.Err.Error())
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// CodecError wraps a failure of the external codec tool at any stage.
// Malformed input and infrastructure hiccups are not distinguished; both
// are retried.
type CodecError struct {
	Stage string // "thumbnail" or "segment"
	Err   error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec error at %s: %s", e.Stage, e.Err.Error())
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a pipeline failure should be retried
func IsRetryable(err error) bool {
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	var codec *CodecError
	return errors.As(err, &codec)
}
