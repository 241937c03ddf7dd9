package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// PutOptions describe an upload.
type PutOptions struct {
	ContentType string
	// Metadata is stored with the object (x-amz-meta-* on S3).
	Metadata map[string]string
}

// BlobStore is object storage addressed by slash-separated paths. Get
// returns ErrNotFound for a missing object; Delete of a missing object is
// not an error.
type BlobStore interface {
	Put(ctx context.Context, path string, data io.Reader, opts PutOptions) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Delete(ctx context.Context, path string) error
}
