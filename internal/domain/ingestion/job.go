package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// JobStatus
// ---------------------------------------------------------------------------

// JobStatus represents the lifecycle status of a fetch job
type JobStatus string

const (
	// JobStatusPending indicates the job is accepted but not yet running
	JobStatusPending JobStatus = "PENDING"
	// JobStatusRunning indicates items are being fetched
	JobStatusRunning JobStatus = "RUNNING"
	// JobStatusSuccess indicates every item succeeded
	JobStatusSuccess JobStatus = "SUCCESS"
	// JobStatusPartialSuccess indicates at least one item succeeded and
	// at least one failed
	JobStatusPartialSuccess JobStatus = "PARTIAL_SUCCESS"
	// JobStatusFailed indicates every item failed, or the job aborted
	JobStatusFailed JobStatus = "FAILED"
	// JobStatusCancelled indicates the job was cancelled by a caller
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsValid returns true if the status is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusSuccess,
		JobStatusPartialSuccess, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transitions are allowed
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSuccess, JobStatusPartialSuccess, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// ItemStatus
// ---------------------------------------------------------------------------

// ItemStatus is the per-item outcome within a job
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusSuccess ItemStatus = "success"
	ItemStatusFailed  ItemStatus = "failed"
)

// String returns the string representation of ItemStatus
func (s ItemStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// FetchJob
// ---------------------------------------------------------------------------

// FetchJob is the durable record of one review-fetch request. Its counters
// are the sole source of truth for the terminal status: the final status is
// computed from CompletedItems and FailedItems, never assigned ad hoc.
type FetchJob struct {
	// ID is the job identifier
	ID uuid.UUID
	// Platform identifies which platform the job targets
	Platform PlatformCode
	// SellerID identifies the seller the fetch runs on behalf of
	SellerID string
	// ItemIDs is the deduplicated, order-preserving item list
	ItemIDs []string

	// Status is the current lifecycle status
	Status JobStatus
	// TotalItems is fixed at submission time
	TotalItems int
	// CompletedItems counts items that fetched and stored successfully
	CompletedItems int
	// FailedItems counts items that exhausted retries or failed permanently
	FailedItems int
	// ReviewsFetchedTotal sums reviews across all successful items
	ReviewsFetchedTotal int

	// ErrorMessage describes a job-level abort, if any
	ErrorMessage string
	// RequestedBy records the submitting principal, if known
	RequestedBy string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

// NewFetchJob creates a pending job for the given seller and items. Item IDs
// are trimmed and deduplicated preserving first-seen order; an empty result
// fails with ErrJobNoItems.
func NewFetchJob(platform PlatformCode, sellerID string, itemIDs []string, requestedBy string) (*FetchJob, error) {
	if !platform.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	deduped := dedupeItemIDs(itemIDs)
	if len(deduped) == 0 {
		return nil, ErrJobNoItems
	}
	now := time.Now()
	return &FetchJob{
		ID:          uuid.New(),
		Platform:    platform,
		SellerID:    sellerID,
		ItemIDs:     deduped,
		Status:      JobStatusPending,
		TotalItems:  len(deduped),
		RequestedBy: requestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func dedupeItemIDs(itemIDs []string) []string {
	seen := make(map[string]struct{}, len(itemIDs))
	out := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Start transitions PENDING -> RUNNING
func (j *FetchJob) Start() error {
	if j.Status != JobStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrJobInvalidTransition, j.Status, JobStatusRunning)
	}
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// RecordItemSuccess increments the success counters for one finished item.
func (j *FetchJob) RecordItemSuccess(reviews int) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: record on %s job", ErrJobInvalidTransition, j.Status)
	}
	if j.CompletedItems+j.FailedItems >= j.TotalItems {
		return fmt.Errorf("%w: item counters exceed total", ErrJobInvalidTransition)
	}
	j.CompletedItems++
	j.ReviewsFetchedTotal += reviews
	j.UpdatedAt = time.Now()
	return nil
}

// RecordItemFailure increments the failure counter for one finished item.
func (j *FetchJob) RecordItemFailure() error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: record on %s job", ErrJobInvalidTransition, j.Status)
	}
	if j.CompletedItems+j.FailedItems >= j.TotalItems {
		return fmt.Errorf("%w: item counters exceed total", ErrJobInvalidTransition)
	}
	j.FailedItems++
	j.UpdatedAt = time.Now()
	return nil
}

// Complete transitions RUNNING to the terminal status computed from the
// item counters: all succeeded -> SUCCESS, some succeeded -> PARTIAL_SUCCESS,
// none succeeded -> FAILED.
func (j *FetchJob) Complete() error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: complete on %s job", ErrJobInvalidTransition, j.Status)
	}
	now := time.Now()
	switch {
	case j.CompletedItems == j.TotalItems:
		j.Status = JobStatusSuccess
	case j.CompletedItems > 0:
		j.Status = JobStatusPartialSuccess
	default:
		j.Status = JobStatusFailed
	}
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// FailFatal aborts the job with a job-level error, regardless of item
// progress. Terminal jobs are left untouched.
func (j *FetchJob) FailFatal(cause string) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", ErrJobAlreadyTerminal, j.ID, j.Status)
	}
	now := time.Now()
	j.Status = JobStatusFailed
	j.ErrorMessage = cause
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Cancel transitions a non-terminal job to CANCELLED. Items already
// dispatched may still finish; their counters stand.
func (j *FetchJob) Cancel() error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", ErrJobAlreadyTerminal, j.ID, j.Status)
	}
	now := time.Now()
	j.Status = JobStatusCancelled
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// PendingItems returns how many items have not yet been accounted for
func (j *FetchJob) PendingItems() int {
	return j.TotalItems - j.CompletedItems - j.FailedItems
}

// ---------------------------------------------------------------------------
// ItemFetchResult
// ---------------------------------------------------------------------------

// ItemFetchResult tracks the per-item outcome within a job, including the
// object-store keys the item's pages landed at.
type ItemFetchResult struct {
	ID uuid.UUID
	// JobID is the owning job
	JobID uuid.UUID
	// ItemID is the platform item identifier (ASIN, product ID)
	ItemID string
	// Position is the item's index in the submitted list
	Position int

	Status ItemStatus
	// ReviewsCount is the number of normalized reviews for this item
	ReviewsCount int
	// PagesFetched is the number of raw pages stored
	PagesFetched int
	// RawKeys lists the raw page object keys, in page order
	RawKeys []string
	// ProcessedKey is the normalized artifact object key
	ProcessedKey string
	// ErrorMessage describes the failure, if any
	ErrorMessage string

	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewItemFetchResult creates a pending result row for one item of a job
func NewItemFetchResult(jobID uuid.UUID, itemID string, position int) *ItemFetchResult {
	return &ItemFetchResult{
		ID:       uuid.New(),
		JobID:    jobID,
		ItemID:   itemID,
		Position: position,
		Status:   ItemStatusPending,
	}
}

// Begin marks the item as dispatched
func (r *ItemFetchResult) Begin() {
	now := time.Now()
	r.StartedAt = &now
}

// Succeed records a successful fetch with its stored keys
func (r *ItemFetchResult) Succeed(reviews, pages int, rawKeys []string, processedKey string) {
	now := time.Now()
	r.Status = ItemStatusSuccess
	r.ReviewsCount = reviews
	r.PagesFetched = pages
	r.RawKeys = rawKeys
	r.ProcessedKey = processedKey
	r.CompletedAt = &now
}

// Fail records a terminal per-item failure
func (r *ItemFetchResult) Fail(cause string) {
	now := time.Now()
	r.Status = ItemStatusFailed
	r.ErrorMessage = cause
	r.CompletedAt = &now
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

// FetchJobRepository persists fetch jobs. Counter updates are expected to be
// atomic at the storage layer so concurrent item workers never lose an
// increment.
type FetchJobRepository interface {
	// Create persists a new pending job
	Create(ctx context.Context, job *FetchJob) error

	// FindByID finds a job, failing with ErrJobNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*FetchJob, error)

	// MarkStarted transitions PENDING -> RUNNING
	MarkStarted(ctx context.Context, id uuid.UUID) error

	// RecordItemOutcome atomically increments the counters for one
	// finished item
	RecordItemOutcome(ctx context.Context, id uuid.UUID, success bool, reviews int) error

	// Finalize writes the job's terminal status as computed by Complete,
	// FailFatal or Cancel
	Finalize(ctx context.Context, job *FetchJob) error

	// ListBySeller lists the seller's jobs. orderBy and orderDir are
	// validated against a whitelist; invalid values fall back to
	// created_at DESC.
	ListBySeller(ctx context.Context, sellerID string, limit, offset int, orderBy, orderDir string) ([]*FetchJob, int64, error)
}

// ItemResultRepository persists per-item results.
type ItemResultRepository interface {
	// CreateBatch persists the pending rows for a job's items
	CreateBatch(ctx context.Context, results []*ItemFetchResult) error

	// Update persists an item's outcome
	Update(ctx context.Context, result *ItemFetchResult) error

	// ListByJob lists a job's item results in submission order
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*ItemFetchResult, error)
}
