package storage

import (
	"context"
	"io"
	"time"
)

// File is one object to store
type File struct {
	FileName    string
	Body        io.Reader
	ContentType string
	Size        int64
}

// UploadOptions customizes key generation
type UploadOptions struct {
	// PreserveFileName keeps the object name exactly as given instead of
	// prefixing a timestamp. Required for HLS artifacts so that relative
	// references inside the manifest stay resolvable.
	PreserveFileName bool
}

// UploadResult identifies a stored object
type UploadResult struct {
	URL string
	Key string
}

// Provider abstracts the object store. Upload returns only after the
// object is retrievable; latency is treated as unbounded blocking I/O.
type Provider interface {
	Upload(ctx context.Context, file File, folder string, opts UploadOptions) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
