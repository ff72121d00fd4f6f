package storage

import (
	"context"
	"time"
)

// ArtifactStore persists raw review pages and normalized review artifacts
// in an object store. Keys are built by this package and are write-once:
// a retried item produces a new job id segment, so existing objects are
// never overwritten in place.
type ArtifactStore interface {
	// SaveRaw persists one raw platform response page.
	SaveRaw(ctx context.Context, key string, data []byte) error

	// SaveNormalized persists the normalized artifact for one item.
	SaveNormalized(ctx context.Context, key string, data []byte) error

	// Exists reports whether an object is already present under key.
	Exists(ctx context.Context, key string) (bool, error)

	// DownloadURL returns a presigned URL for reading a stored artifact.
	DownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}
