package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/infrastructure/config"
	"github.com/reviewsync/backend/internal/infrastructure/telemetry"
)

// SubmitJobInput is one review-fetch request.
type SubmitJobInput struct {
	// SellerID is the seller to fetch on behalf of
	SellerID string
	// ItemIDs lists the items to fetch; duplicates are collapsed
	ItemIDs []string
	// RequestedBy records the submitting principal, if known
	RequestedBy string
	// IdempotencyKey deduplicates retried submissions; optional
	IdempotencyKey string
}

// JobStatusView aggregates a job with the object keys its items produced.
type JobStatusView struct {
	Job           *ingestion.FetchJob
	RawKeys       []string
	ProcessedKeys []string
}

// jobControl tracks one running job's cancellation state.
type jobControl struct {
	cancelled bool
}

// JobService owns the fetch job lifecycle: submission, execution,
// cancellation and status queries. Execution itself happens on the worker
// pool; Submit only persists the job and hands it to the dispatcher.
type JobService struct {
	jobs         ingestion.FetchJobRepository
	items        ingestion.ItemResultRepository
	sellers      ingestion.SellerRepository
	orchestrator *FetchOrchestrator
	idempotency  IdempotencyStore
	dispatcher   JobDispatcher
	cfg          config.JobsConfig
	logger       *zap.Logger
	metrics      *telemetry.IngestionMetrics

	mu      sync.Mutex
	running map[uuid.UUID]*jobControl
}

// NewJobService creates a JobService
func NewJobService(
	jobs ingestion.FetchJobRepository,
	items ingestion.ItemResultRepository,
	sellers ingestion.SellerRepository,
	orchestrator *FetchOrchestrator,
	idempotency IdempotencyStore,
	dispatcher JobDispatcher,
	cfg config.JobsConfig,
	logger *zap.Logger,
) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ItemConcurrency <= 0 {
		cfg.ItemConcurrency = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &JobService{
		jobs:         jobs,
		items:        items,
		sellers:      sellers,
		orchestrator: orchestrator,
		idempotency:  idempotency,
		dispatcher:   dispatcher,
		cfg:          cfg,
		logger:       logger,
		running:      make(map[uuid.UUID]*jobControl),
	}
}

// SetMetrics sets the ingestion metrics collector
func (s *JobService) SetMetrics(m *telemetry.IngestionMetrics) {
	s.metrics = m
}

// Submit validates and persists a new fetch job, then enqueues it.
// Returns the job and whether it was newly created; a repeated submission
// with the same idempotency key returns the original job.
func (s *JobService) Submit(ctx context.Context, in SubmitJobInput) (*ingestion.FetchJob, bool, error) {
	seller, err := s.sellers.FindByID(ctx, in.SellerID)
	if err != nil {
		return nil, false, err
	}
	if !seller.IsActive() {
		return nil, false, fmt.Errorf("%w: seller %s is %s", ingestion.ErrSellerNotActive, seller.ID, seller.Status)
	}

	job, err := ingestion.NewFetchJob(seller.Platform, seller.ID, in.ItemIDs, in.RequestedBy)
	if err != nil {
		return nil, false, err
	}

	if in.IdempotencyKey != "" && s.idempotency != nil {
		winner, created, rerr := s.idempotency.Reserve(ctx, in.IdempotencyKey, job.ID.String(), s.cfg.IdempotencyTTL)
		if rerr != nil {
			return nil, false, rerr
		}
		if !created {
			winnerID, perr := uuid.Parse(winner)
			if perr != nil {
				return nil, false, fmt.Errorf("idempotency key %q maps to invalid job id %q", in.IdempotencyKey, winner)
			}
			existing, ferr := s.jobs.FindByID(ctx, winnerID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, false, err
	}

	results := make([]*ingestion.ItemFetchResult, 0, len(job.ItemIDs))
	for i, itemID := range job.ItemIDs {
		results = append(results, ingestion.NewItemFetchResult(job.ID, itemID, i))
	}
	if err := s.items.CreateBatch(ctx, results); err != nil {
		return nil, false, err
	}

	if err := s.dispatcher.Dispatch(job.ID); err != nil {
		if ferr := job.FailFatal(fmt.Sprintf("dispatch failed: %v", err)); ferr == nil {
			if serr := s.jobs.Finalize(ctx, job); serr != nil {
				s.logger.Error("failed to finalize undispatchable job",
					zap.String("job_id", job.ID.String()), zap.Error(serr))
			}
		}
		return nil, false, fmt.Errorf("dispatch job %s: %w", job.ID, err)
	}

	if s.metrics != nil {
		s.metrics.RecordJobSubmitted(ctx, seller.Platform.String())
	}

	s.logger.Info("fetch job accepted",
		zap.String("job_id", job.ID.String()),
		zap.String("seller_id", seller.ID),
		zap.String("platform", seller.Platform.String()),
		zap.Int("items", job.TotalItems))

	return job, true, nil
}

// Run executes one job to its terminal status. Invoked by the worker pool;
// parentCtx is the pool's lifecycle context, not a request context.
func (s *JobService) Run(parentCtx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.FindByID(parentCtx, jobID)
	if err != nil {
		return err
	}
	if job.Status != ingestion.JobStatusPending {
		// Cancelled or finalized while queued
		s.logger.Debug("skipping job not in pending state",
			zap.String("job_id", jobID.String()),
			zap.String("status", job.Status.String()))
		return nil
	}

	seller, err := s.sellers.FindByID(parentCtx, job.SellerID)
	if err != nil {
		return s.abortPending(parentCtx, job, err.Error())
	}
	if !seller.IsActive() {
		return s.abortPending(parentCtx, job, fmt.Sprintf("seller %s is %s", seller.ID, seller.Status))
	}

	if err := s.jobs.MarkStarted(parentCtx, job.ID); err != nil {
		if errors.Is(err, ingestion.ErrJobInvalidTransition) {
			// Raced with a cancellation
			return nil
		}
		return err
	}
	if err := job.Start(); err != nil {
		return err
	}

	jobCtx, cancel := context.WithTimeout(parentCtx, s.cfg.JobTimeout)
	defer cancel()

	ctl := &jobControl{}
	s.mu.Lock()
	s.running[job.ID] = ctl
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, job.ID)
		s.mu.Unlock()
	}()

	rows, err := s.items.ListByJob(parentCtx, job.ID)
	if err != nil {
		return err
	}

	g := &errgroup.Group{}
	g.SetLimit(s.cfg.ItemConcurrency)

	for _, row := range rows {
		if row.Status != ingestion.ItemStatusPending {
			continue
		}
		// Cooperative cancellation: checked before dispatching each item;
		// items already in flight run to completion and are recorded.
		if s.isCancelled(job.ID) || jobCtx.Err() != nil {
			break
		}
		row := row
		g.Go(func() error {
			// Re-checked here: Go blocks on the concurrency limit, so a
			// cancel can land between dispatch and execution.
			if s.isCancelled(job.ID) || jobCtx.Err() != nil {
				return nil
			}
			s.runItem(jobCtx, parentCtx, job, seller, row)
			return nil
		})
	}
	_ = g.Wait()

	timedOut := jobCtx.Err() != nil && !s.isCancelled(job.ID)
	if timedOut {
		s.failRemainingItems(parentCtx, job.ID, "job timed out")
	}

	return s.finalize(parentCtx, job.ID)
}

// runItem fetches one item and records its outcome. recordCtx outlives the
// job context so outcomes of in-flight items survive timeout/cancel.
func (s *JobService) runItem(jobCtx, recordCtx context.Context, job *ingestion.FetchJob, seller *ingestion.Seller, row *ingestion.ItemFetchResult) {
	row.Begin()
	started := time.Now()

	outcome, err := s.orchestrator.FetchItem(jobCtx, seller, job.ID, row.ItemID)
	if err != nil {
		row.Fail(err.Error())
		if uerr := s.items.Update(recordCtx, row); uerr != nil {
			s.logger.Error("failed to persist item failure",
				zap.String("job_id", job.ID.String()),
				zap.String("item_id", row.ItemID),
				zap.Error(uerr))
		}
		if rerr := s.jobs.RecordItemOutcome(recordCtx, job.ID, false, 0); rerr != nil {
			s.logger.Error("failed to record item outcome",
				zap.String("job_id", job.ID.String()),
				zap.String("item_id", row.ItemID),
				zap.Error(rerr))
		}
		if s.metrics != nil {
			s.metrics.RecordItemFetched(recordCtx, job.Platform.String(), ingestion.ItemStatusFailed.String(), 0, time.Since(started))
		}
		s.logger.Warn("item fetch failed",
			zap.String("job_id", job.ID.String()),
			zap.String("seller_id", seller.ID),
			zap.String("item_id", row.ItemID),
			zap.Error(err))
		return
	}

	row.Succeed(outcome.Reviews, outcome.Pages, outcome.RawKeys, outcome.ProcessedKey)
	if uerr := s.items.Update(recordCtx, row); uerr != nil {
		s.logger.Error("failed to persist item success",
			zap.String("job_id", job.ID.String()),
			zap.String("item_id", row.ItemID),
			zap.Error(uerr))
	}
	if rerr := s.jobs.RecordItemOutcome(recordCtx, job.ID, true, outcome.Reviews); rerr != nil {
		s.logger.Error("failed to record item outcome",
			zap.String("job_id", job.ID.String()),
			zap.String("item_id", row.ItemID),
			zap.Error(rerr))
	}
	if s.metrics != nil {
		s.metrics.RecordItemFetched(recordCtx, job.Platform.String(), ingestion.ItemStatusSuccess.String(), int64(outcome.Reviews), time.Since(started))
	}
}

// failRemainingItems marks every still-pending item of the job as failed.
func (s *JobService) failRemainingItems(ctx context.Context, jobID uuid.UUID, cause string) {
	rows, err := s.items.ListByJob(ctx, jobID)
	if err != nil {
		s.logger.Error("failed to list items for remainder failure",
			zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}
	for _, row := range rows {
		if row.Status != ingestion.ItemStatusPending {
			continue
		}
		row.Fail(cause)
		if uerr := s.items.Update(ctx, row); uerr != nil {
			s.logger.Error("failed to persist item failure",
				zap.String("job_id", jobID.String()),
				zap.String("item_id", row.ItemID),
				zap.Error(uerr))
			continue
		}
		if rerr := s.jobs.RecordItemOutcome(ctx, jobID, false, 0); rerr != nil {
			s.logger.Error("failed to record item outcome",
				zap.String("job_id", jobID.String()),
				zap.String("item_id", row.ItemID),
				zap.Error(rerr))
		}
	}
}

// finalize reloads the job for fresh counters and writes its terminal
// status. A job already finalized by Cancel is left untouched.
func (s *JobService) finalize(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}
	if err := job.Complete(); err != nil {
		return err
	}
	if err := s.jobs.Finalize(ctx, job); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordJobCompleted(ctx, job.Platform.String(), job.Status.String())
	}
	s.logger.Info("fetch job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("status", job.Status.String()),
		zap.Int("completed", job.CompletedItems),
		zap.Int("failed", job.FailedItems),
		zap.Int("reviews", job.ReviewsFetchedTotal))
	return nil
}

// abortPending short-circuits a pending job to FAILED with a job-level
// cause, failing all of its item rows.
func (s *JobService) abortPending(ctx context.Context, job *ingestion.FetchJob, cause string) error {
	if err := job.FailFatal(cause); err != nil {
		return err
	}
	s.failRemainingItems(ctx, job.ID, cause)
	if err := s.jobs.Finalize(ctx, job); err != nil {
		return err
	}
	s.logger.Warn("fetch job aborted",
		zap.String("job_id", job.ID.String()),
		zap.String("cause", cause))
	return nil
}

// Cancel transitions a non-terminal job to CANCELLED and signals its
// runner, if any. In-flight items finish and keep their recorded outcomes.
func (s *JobService) Cancel(ctx context.Context, jobID uuid.UUID) (*ingestion.FetchJob, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Cancel(); err != nil {
		return nil, err
	}
	if err := s.jobs.Finalize(ctx, job); err != nil {
		return nil, err
	}

	// Only flag the runner; the dispatch loop stops picking up new items
	// while items already in flight keep their fetch context. Tearing down
	// jobCtx here would abort their HTTP requests mid-fetch.
	s.mu.Lock()
	if ctl, ok := s.running[jobID]; ok {
		ctl.cancelled = true
	}
	s.mu.Unlock()

	s.logger.Info("fetch job cancelled", zap.String("job_id", jobID.String()))
	return job, nil
}

func (s *JobService) isCancelled(jobID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctl, ok := s.running[jobID]
	return ok && ctl.cancelled
}

// Status returns the job together with the aggregated object keys of its
// item results.
func (s *JobService) Status(ctx context.Context, jobID uuid.UUID) (*JobStatusView, error) {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	rows, err := s.items.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &JobStatusView{Job: job}
	for _, row := range rows {
		view.RawKeys = append(view.RawKeys, row.RawKeys...)
		if row.ProcessedKey != "" {
			view.ProcessedKeys = append(view.ProcessedKeys, row.ProcessedKey)
		}
	}
	return view, nil
}

// Items returns the job's per-item results in submission order.
func (s *JobService) Items(ctx context.Context, jobID uuid.UUID) ([]*ingestion.ItemFetchResult, error) {
	if _, err := s.jobs.FindByID(ctx, jobID); err != nil {
		return nil, err
	}
	return s.items.ListByJob(ctx, jobID)
}

// ListBySeller lists a seller's jobs, newest first unless a sort is
// requested.
func (s *JobService) ListBySeller(ctx context.Context, sellerID string, limit, offset int, orderBy, orderDir string) ([]*ingestion.FetchJob, int64, error) {
	if _, err := s.sellers.FindByID(ctx, sellerID); err != nil {
		return nil, 0, err
	}
	return s.jobs.ListBySeller(ctx, sellerID, limit, offset, orderBy, orderDir)
}
