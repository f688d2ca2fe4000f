package port

import (
	"context"
	"io"
)

// ArtifactStorage holds job inputs and processed results.
type ArtifactStorage interface {
	PutInput(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	OpenInput(ctx context.Context, key string) (io.ReadCloser, error)
	// DeleteInput succeeds when the key does not exist.
	DeleteInput(ctx context.Context, key string) error
	PutResult(ctx context.Context, key string, reader io.Reader, size int64) error
	OpenResult(ctx context.Context, key string) (io.ReadCloser, int64, error)
}
