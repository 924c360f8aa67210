package object

import (
	"context"
	"io"
)

// BlobStore defines the contract for saving, retrieving, and deleting binary
// objects by an opaque key chosen by the caller.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
