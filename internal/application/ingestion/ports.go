package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobDispatcher enqueues accepted jobs for asynchronous execution by the
// worker pool.
type JobDispatcher interface {
	// Dispatch hands a pending job to the pool, failing when the queue
	// is full or the pool is stopped.
	Dispatch(jobID uuid.UUID) error
}

// IdempotencyStore deduplicates job submissions that carry an
// Idempotency-Key header. A repeated submission within the TTL maps back
// to the job created by the first one instead of creating a duplicate.
type IdempotencyStore interface {
	// Reserve atomically claims key on behalf of jobID. When the key is
	// already claimed it returns the job id of the original claim and
	// created=false.
	Reserve(ctx context.Context, key, jobID string, ttl time.Duration) (existingJobID string, created bool, err error)

	Close() error
}
