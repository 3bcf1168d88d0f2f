package storage

import (
	"context"
	"errors"
	"io"
)

var ErrBlobNotFound = errors.New("blob not found")

// BlobStorage holds opaque encrypted blobs addressed by storage name.
type BlobStorage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	// Delete is idempotent: removing a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}
