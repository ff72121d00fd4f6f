package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/infrastructure/config"
	"github.com/reviewsync/backend/internal/infrastructure/ratelimit"
	"github.com/reviewsync/backend/internal/infrastructure/storage"
)

// ItemOutcome is the result of fetching every review page of one item.
type ItemOutcome struct {
	// Reviews is the number of normalized reviews
	Reviews int
	// Pages is the number of raw pages stored
	Pages int
	// RawKeys lists the raw page object keys, in page order
	RawKeys []string
	// ProcessedKey is the normalized artifact object key
	ProcessedKey string
}

// FetchOrchestrator drives the page loop for one item: rate limiting,
// credential lookup, retry with backoff, forced reauthorization, and
// artifact persistence. Failures surface as typed errors so the job layer
// can fail the single item without aborting the job.
type FetchOrchestrator struct {
	registry    ingestion.PlatformRegistry
	credentials *CredentialService
	limiter     *ratelimit.Manager
	store       storage.ArtifactStore
	retry       config.RetryConfig
	pageSizes   map[ingestion.PlatformCode]int
	logger      *zap.Logger

	// sleep is swapped out in tests to avoid real backoff waits
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetchOrchestrator creates a FetchOrchestrator
func NewFetchOrchestrator(
	registry ingestion.PlatformRegistry,
	credentials *CredentialService,
	limiter *ratelimit.Manager,
	store storage.ArtifactStore,
	cfg *config.Config,
	logger *zap.Logger,
) *FetchOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 5
	}
	if retry.InitialDelay <= 0 {
		retry.InitialDelay = 500 * time.Millisecond
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = 30 * time.Second
	}
	return &FetchOrchestrator{
		registry:    registry,
		credentials: credentials,
		limiter:     limiter,
		store:       store,
		retry:       retry,
		pageSizes: map[ingestion.PlatformCode]int{
			ingestion.PlatformAmazon:  cfg.Amazon.PageSize,
			ingestion.PlatformShopify: cfg.Shopify.PageSize,
		},
		logger: logger,
		sleep:  sleepCtx,
	}
}

// FetchItem fetches, normalizes and stores every review page of one item.
// Raw pages are persisted as they arrive; a page whose key already exists
// is not rewritten. Normalization or storage failures fail the item.
func (o *FetchOrchestrator) FetchItem(ctx context.Context, seller *ingestion.Seller, jobID uuid.UUID, itemID string) (*ItemOutcome, error) {
	bundle, err := o.registry.Resolve(seller.Platform)
	if err != nil {
		return nil, err
	}

	fetchedAt := time.Now().UTC()
	platform := seller.Platform.String()

	var (
		pageToken string
		pageNum   = 1
		rawKeys   []string
		reviews   []ingestion.Review
	)

	for {
		params := ingestion.FetchParams{
			ItemID:    itemID,
			PageToken: pageToken,
			PageSize:  o.pageSizes[seller.Platform],
		}

		page, err := o.fetchPageWithRetry(ctx, seller, bundle.Fetcher, params)
		if err != nil {
			return nil, err
		}
		if page.PageNumber == 0 {
			page.PageNumber = pageNum
		}

		key := storage.RawPageKey(platform, seller.ID, itemID, fetchedAt, jobID.String(), page.PageNumber)
		exists, err := o.store.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if !exists {
			if err := o.store.SaveRaw(ctx, key, page.Body); err != nil {
				return nil, err
			}
		}
		rawKeys = append(rawKeys, key)

		pageReviews, err := bundle.Normalizer.NormalizePage(page, itemID)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, pageReviews...)

		if page.NextToken == "" {
			break
		}
		pageToken = page.NextToken
		pageNum = page.PageNumber + 1
	}

	artifact := ingestion.NewNormalizedArtifact(ingestion.ArtifactMeta{
		JobID:        jobID.String(),
		SellerID:     seller.ID,
		Platform:     seller.Platform,
		ItemID:       itemID,
		PagesFetched: len(rawKeys),
		FetchedAt:    fetchedAt,
	}, reviews)

	data, err := json.Marshal(artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal artifact for item %s: %v", ingestion.ErrStorage, itemID, err)
	}

	processedKey := storage.ProcessedKey(platform, seller.ID, itemID, fetchedAt, jobID.String())
	if err := o.store.SaveNormalized(ctx, processedKey, data); err != nil {
		return nil, err
	}

	o.logger.Debug("item fetched",
		zap.String("seller_id", seller.ID),
		zap.String("item_id", itemID),
		zap.Int("pages", len(rawKeys)),
		zap.Int("reviews", len(reviews)))

	return &ItemOutcome{
		Reviews:      len(reviews),
		Pages:        len(rawKeys),
		RawKeys:      rawKeys,
		ProcessedKey: processedKey,
	}, nil
}

// fetchPageWithRetry fetches one page, retrying transients with backoff
// and performing at most one forced reauthorization on 401/403.
func (o *FetchOrchestrator) fetchPageWithRetry(
	ctx context.Context,
	seller *ingestion.Seller,
	fetcher ingestion.ReviewFetcher,
	params ingestion.FetchParams,
) (*ingestion.RawPage, error) {
	var (
		attempt      int
		forcedReauth bool
	)

	for {
		if err := o.limiter.Acquire(ctx, seller.ID, seller.Platform); err != nil {
			return nil, err
		}

		creds, err := o.credentials.GetValidCredentials(ctx, seller.ID)
		if err != nil {
			return nil, err
		}

		page, err := fetcher.FetchPage(ctx, creds, params)
		if err == nil {
			return page, nil
		}

		var fetchErr *ingestion.FetchError
		if !errors.As(err, &fetchErr) {
			return nil, err
		}

		switch fetchErr.Class {
		case ingestion.FetchClassTransient:
			// An explicit throttle signal holds the whole bucket, so
			// every worker sharing the (seller, platform) pair backs off.
			if fetchErr.RetryAfter > 0 {
				o.limiter.Throttle(seller.ID, seller.Platform, fetchErr.RetryAfter)
			}
			attempt++
			if attempt >= o.retry.MaxAttempts {
				return nil, fmt.Errorf("item %s: retries exhausted after %d attempts: %w", params.ItemID, attempt, err)
			}
			delay := o.backoffDelay(attempt)
			o.logger.Debug("transient fetch failure, backing off",
				zap.String("seller_id", seller.ID),
				zap.String("item_id", params.ItemID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
			if serr := o.sleep(ctx, delay); serr != nil {
				return nil, serr
			}

		case ingestion.FetchClassAuth:
			if forcedReauth {
				// The token was just refreshed and still rejected.
				if merr := o.credentials.MarkReauthorizeRequired(ctx, seller.ID, err.Error()); merr != nil {
					o.logger.Error("failed to flag seller for reauthorization",
						zap.String("seller_id", seller.ID), zap.Error(merr))
				}
				return nil, fmt.Errorf("item %s: credentials rejected after forced refresh: %w", params.ItemID, err)
			}
			forcedReauth = true
			if _, rerr := o.credentials.ForceRefresh(ctx, seller.ID); rerr != nil {
				return nil, rerr
			}

		default:
			return nil, err
		}
	}
}

// backoffDelay computes the delay before retry n (1-based): initial delay
// doubled per attempt, capped, with up to 25% random jitter added.
func (o *FetchOrchestrator) backoffDelay(attempt int) time.Duration {
	delay := o.retry.InitialDelay << uint(attempt-1)
	if delay > o.retry.MaxDelay || delay <= 0 {
		delay = o.retry.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
