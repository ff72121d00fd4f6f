// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// IngestionMetrics tracks review fetch activity: job throughput, per-item
// outcomes, review volume, and credential refresh health.
type IngestionMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	jobSubmittedTotal   *Counter
	jobCompletedTotal   *Counter
	itemFetchedTotal    *Counter
	reviewsFetchedTotal *Counter
	tokenRefreshTotal   *Counter

	// Histogram metrics
	fetchDuration *Histogram

	// Gauge metrics (point-in-time values)
	jobBacklog     *Gauge
	sellersByState *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	backlogProvider BacklogMetricsProvider
}

// BacklogMetricsProvider supplies point-in-time job and seller counts for
// periodic gauge collection. The interface keeps the telemetry layer from
// depending on the persistence layer directly.
type BacklogMetricsProvider interface {
	// CountJobsByStatus returns the number of fetch jobs per status
	CountJobsByStatus(ctx context.Context) (map[string]int64, error)

	// CountSellersByStatus returns the number of sellers per status
	CountSellersByStatus(ctx context.Context) (map[string]int64, error)
}

// IngestionMetricsConfig holds configuration for ingestion metrics.
type IngestionMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 1 minute
	BacklogProvider BacklogMetricsProvider
}

// NewIngestionMetrics creates a new IngestionMetrics instance.
func NewIngestionMetrics(cfg IngestionMetricsConfig) (*IngestionMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	im := &IngestionMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		backlogProvider: cfg.BacklogProvider,
	}

	var err error

	im.jobSubmittedTotal, err = NewCounter(
		cfg.Meter,
		"reviewsync_job_submitted_total",
		"Total number of fetch jobs submitted",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	im.jobCompletedTotal, err = NewCounter(
		cfg.Meter,
		"reviewsync_job_completed_total",
		"Total number of fetch jobs that reached a terminal status",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	im.itemFetchedTotal, err = NewCounter(
		cfg.Meter,
		"reviewsync_item_fetched_total",
		"Total number of per-item fetch outcomes",
		"{items}",
	)
	if err != nil {
		return nil, err
	}

	im.reviewsFetchedTotal, err = NewCounter(
		cfg.Meter,
		"reviewsync_reviews_fetched_total",
		"Total number of reviews fetched from platforms",
		"{reviews}",
	)
	if err != nil {
		return nil, err
	}

	im.tokenRefreshTotal, err = NewCounter(
		cfg.Meter,
		"reviewsync_token_refresh_total",
		"Total number of access token refresh attempts",
		"{refreshes}",
	)
	if err != nil {
		return nil, err
	}

	im.fetchDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "reviewsync_item_fetch_duration_seconds",
		Description: "Per-item fetch duration distribution in seconds",
		Unit:        "s",
		Boundaries:  HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	im.jobBacklog, err = NewGauge(
		cfg.Meter,
		"reviewsync_job_backlog",
		"Current number of fetch jobs per status",
		"{jobs}",
	)
	if err != nil {
		return nil, err
	}

	im.sellersByState, err = NewGauge(
		cfg.Meter,
		"reviewsync_sellers",
		"Current number of sellers per authorization status",
		"{sellers}",
	)
	if err != nil {
		return nil, err
	}

	return im, nil
}

// =============================================================================
// Job Metrics
// =============================================================================

// RecordJobSubmitted records a fetch job submission.
func (im *IngestionMetrics) RecordJobSubmitted(ctx context.Context, platform string) {
	im.jobSubmittedTotal.Inc(ctx,
		AttrPlatform.String(platform),
	)
}

// RecordJobCompleted records a job reaching a terminal status.
func (im *IngestionMetrics) RecordJobCompleted(ctx context.Context, platform, status string) {
	im.jobCompletedTotal.Inc(ctx,
		AttrPlatform.String(platform),
		AttrJobStatus.String(status),
	)
}

// =============================================================================
// Item Metrics
// =============================================================================

// RecordItemFetched records one per-item outcome and the reviews it produced.
func (im *IngestionMetrics) RecordItemFetched(ctx context.Context, platform, status string, reviews int64, duration time.Duration) {
	im.itemFetchedTotal.Inc(ctx,
		AttrPlatform.String(platform),
		AttrItemStatus.String(status),
	)
	if reviews > 0 {
		im.reviewsFetchedTotal.Add(ctx, reviews,
			AttrPlatform.String(platform),
		)
	}
	if duration > 0 {
		im.fetchDuration.RecordDuration(ctx, duration,
			AttrPlatform.String(platform),
		)
	}
}

// =============================================================================
// Credential Metrics
// =============================================================================

// RefreshOutcome labels the result of a token refresh for metrics.
type RefreshOutcome string

const (
	RefreshOutcomeSuccess RefreshOutcome = "success"
	RefreshOutcomeFailed  RefreshOutcome = "failed"
	RefreshOutcomeRevoked RefreshOutcome = "revoked"
)

// RecordTokenRefresh records an access token refresh attempt.
func (im *IngestionMetrics) RecordTokenRefresh(ctx context.Context, platform string, outcome RefreshOutcome) {
	im.tokenRefreshTotal.Inc(ctx,
		AttrPlatform.String(platform),
		AttrOutcome.String(string(outcome)),
	)
}

// =============================================================================
// Periodic Collection
// =============================================================================

// StartPeriodicCollection starts periodic collection of backlog gauges.
// It is non-blocking; use Stop() to stop collection.
func (im *IngestionMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	im.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}

		go im.runPeriodicCollection(ctx, interval)
	})
}

func (im *IngestionMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	im.collectBacklogMetrics(ctx)

	for {
		select {
		case <-im.stopChan:
			im.logger.Info("Stopping periodic ingestion metrics collection")
			return
		case <-ctx.Done():
			im.logger.Info("Context cancelled, stopping periodic ingestion metrics collection")
			return
		case <-ticker.C:
			im.collectBacklogMetrics(ctx)
		}
	}
}

func (im *IngestionMetrics) collectBacklogMetrics(ctx context.Context) {
	if im.backlogProvider == nil {
		im.logger.Debug("No backlog provider configured, skipping gauge collection")
		return
	}

	jobCounts, err := im.backlogProvider.CountJobsByStatus(ctx)
	if err != nil {
		im.logger.Warn("Failed to count jobs for metrics collection", zap.Error(err))
	} else {
		for status, count := range jobCounts {
			im.jobBacklog.Record(ctx, count, AttrJobStatus.String(status))
		}
	}

	sellerCounts, err := im.backlogProvider.CountSellersByStatus(ctx)
	if err != nil {
		im.logger.Warn("Failed to count sellers for metrics collection", zap.Error(err))
	} else {
		for status, count := range sellerCounts {
			im.sellersByState.Record(ctx, count, AttrOutcome.String(status))
		}
	}
}

// Stop stops the periodic collection.
func (im *IngestionMetrics) Stop() {
	im.stopOnce.Do(func() {
		close(im.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewIngestionMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
