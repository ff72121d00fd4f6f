package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/infrastructure/config"
	"github.com/reviewsync/backend/internal/infrastructure/ratelimit"
	"github.com/reviewsync/backend/internal/infrastructure/storage"
)

type orchestratorFixture struct {
	orchestrator *FetchOrchestrator
	credentials  *CredentialService
	sellers      *fakeSellerRepo
	seller       *ingestion.Seller
	auth         *fakeAuthClient
	fetcher      *fakeFetcher
	store        *storage.InMemoryArtifactStore
	limiter      *ratelimit.Manager
	slept        *[]time.Duration
}

func newOrchestratorFixture(t *testing.T, fetchFn func(call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error)) *orchestratorFixture {
	t.Helper()

	auth := &fakeAuthClient{platform: ingestion.PlatformAmazon}
	fetcher := &fakeFetcher{platform: ingestion.PlatformAmazon, fetchFn: fetchFn}
	registry := &fakeRegistry{bundle: &ingestion.CapabilityBundle{
		Auth:       auth,
		Fetcher:    fetcher,
		Normalizer: &fakeNormalizer{platform: ingestion.PlatformAmazon},
	}}

	cipher := newTestCipher(t)
	sellers := newFakeSellerRepo()
	seller := seedSeller(t, sellers, cipher, "seller-1", func(s *ingestion.Seller) {
		expires := time.Now().Add(time.Hour)
		s.AccessTokenCached = "valid-token"
		s.AccessTokenExpiresAt = &expires
	})

	credentials := NewCredentialService(sellers, registry, cipher, 60*time.Second, zap.NewNop())

	limiter := ratelimit.NewManager(config.RateLimitConfig{
		DefaultRatePerSecond: 1000,
		DefaultBurst:         1000,
	})
	store := storage.NewInMemoryArtifactStore()

	cfg := &config.Config{
		Retry: config.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
		},
		Amazon:  config.AmazonConfig{PageSize: 100},
		Shopify: config.ShopifyConfig{PageSize: 250},
	}

	orchestrator := NewFetchOrchestrator(registry, credentials, limiter, store, cfg, zap.NewNop())

	slept := &[]time.Duration{}
	orchestrator.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}

	return &orchestratorFixture{
		orchestrator: orchestrator,
		credentials:  credentials,
		sellers:      sellers,
		seller:       seller,
		auth:         auth,
		fetcher:      fetcher,
		store:        store,
		limiter:      limiter,
		slept:        slept,
	}
}

func rawPage(num int, next string) *ingestion.RawPage {
	body, _ := json.Marshal(map[string]any{"page": num})
	return &ingestion.RawPage{PageNumber: num, NextToken: next, Body: body}
}

func TestFetchOrchestrator_FetchItem(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.New()

	t.Run("multi-page fetch stores raw pages and artifact", func(t *testing.T) {
		fx := newOrchestratorFixture(t, func(call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
			switch params.PageToken {
			case "":
				return rawPage(1, "cursor2"), nil
			case "cursor2":
				return rawPage(2, ""), nil
			default:
				return nil, errors.New("unexpected token")
			}
		})

		outcome, err := fx.orchestrator.FetchItem(ctx, fx.seller, jobID, "B000TEST")
		require.NoError(t, err)
		assert.Equal(t, 2, outcome.Pages)
		assert.Equal(t, 2, outcome.Reviews, "one normalized review per page")
		assert.Len(t, outcome.RawKeys, 2)
		assert.Contains(t, outcome.RawKeys[0], "raw/amazon/seller-1/B000TEST/")
		assert.Contains(t, outcome.RawKeys[0], jobID.String()+"/1.json")
		assert.Contains(t, outcome.ProcessedKey, "processed/amazon/seller-1/B000TEST/")

		// Raw pages and the artifact landed in the store
		for _, key := range outcome.RawKeys {
			ok, eerr := fx.store.Exists(ctx, key)
			require.NoError(t, eerr)
			assert.True(t, ok)
		}
		data, ok := fx.store.Get(outcome.ProcessedKey)
		require.True(t, ok)

		var artifact ingestion.NormalizedArtifact
		require.NoError(t, json.Unmarshal(data, &artifact))
		assert.Equal(t, 2, artifact.ReviewCount)
		assert.Equal(t, jobID.String(), artifact.Meta.JobID)
		assert.Equal(t, 2, artifact.Meta.PagesFetched)
	})

	t.Run("transient failures retried with backoff then succeed", func(t *testing.T) {
		fx := newOrchestratorFixture(t, func(call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
			if call <= 2 {
				return nil, ingestion.NewFetchError(ingestion.PlatformAmazon, 503, 0, errors.New("upstream sad"))
			}
			return rawPage(1, ""), nil
		})

		outcome, err := fx.orchestrator.FetchItem(ctx, fx.seller, jobID, "B000TEST")
		require.NoError(t, err)
		assert.Equal(t, 1, outcome.Pages)
		assert.Equal(t, 3, fx.fetcher.Calls())

		require.Len(t, *fx.slept, 2)
		first, second := (*fx.slept)[0], (*fx.slept)[1]
		assert.GreaterOrEqual(t, first, 100*time.Millisecond)
		assert.GreaterOrEqual(t, second, 200*time.Millisecond, "delay doubles per attempt")
	})

	t.Run("retries exhausted surfaces transient error", func(t *testing.T) {
		fx := newOrchestratorFixture(t, func(call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
			return nil, ingestion.NewFetchError(ingestion.PlatformAmazon, 500, 0, errors.New("always down"))
		})

		_, err := fx.orchestrator.FetchItem(ctx, fx.seller, jobID, "B000TEST")
		require.Error(t, err)
		assert.ErrorIs(t, err, ingestion.ErrTransientFetch)
		assert.Equal(t, 3, fx.fetcher.Calls(), "MaxAttempts bounds the fetch count")
	})

	t.Run("429 with Retry-After throttles the bucket", func(t *testing.T) {
		fx := newOrchestratorFixture(t, func(call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
			if call == 1 {
				return nil, ingestion.NewFetchError(ingestion.PlatformAmazon, 429, 5*time.Second, errors.New("slow down"))
			}
			return rawPage(1, ""), nil
		})

		// The second attempt would block on the throttled bucket for
		// ~5s, so run with a short deadline and expect it to give up.
		shortCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
		defer cancel()

		_, err := fx.orchestrator.FetchItem(shortCtx, fx.seller, jobID, "B000TEST")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, fx.limiter.Throttled("seller-1", ingestion.PlatformAmazon))
	})

	t.Run("auth failure forces one refresh then retries", func(t *testing.T) {
		fx := newOrchestratorFixture(t, func(call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
			if creds.AccessToken == "valid-token" {
				return nil, ingestion.NewFetchError(ingestion.PlatformAmazon, 401, 0, errors.New("token rejected"))
			}
			return rawPage(1, ""), nil
		})

		outcome, err := fx.orchestrator.FetchItem(ctx, fx.seller, jobID, "B000TEST")
		require.NoError(t, err)
		assert.Equal(t, 1, outcome.Pages)
		assert.Equal(t, 1, fx.auth.RefreshCalls())
		assert.Equal(t, 2, fx.fetcher.Calls())
	})

	t.Run("second auth failure flags seller and stops", func(t *testing.T) {
		fx := newOrchestratorFixture(t, func(call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
			return nil, ingestion.NewFetchError(ingestion.PlatformAmazon, 401, 0, errors.New("token rejected"))
		})

		_, err := fx.orchestrator.FetchItem(ctx, fx.seller, jobID, "B000TEST")
		require.Error(t, err)
		assert.ErrorIs(t, err, ingestion.ErrAuthExpired)
		assert.Equal(t, 2, fx.fetcher.Calls(), "exactly one retry after the forced refresh")

		stored, ferr := fx.sellers.FindByID(ctx, "seller-1")
		require.NoError(t, ferr)
		assert.Equal(t, ingestion.SellerStatusReauthorizeRequired, stored.Status)
	})

	t.Run("permanent failure is not retried", func(t *testing.T) {
		fx := newOrchestratorFixture(t, func(call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
			return nil, ingestion.NewFetchError(ingestion.PlatformAmazon, 404, 0, errors.New("no such item"))
		})

		_, err := fx.orchestrator.FetchItem(ctx, fx.seller, jobID, "GONE")
		require.Error(t, err)
		assert.ErrorIs(t, err, ingestion.ErrPermanentFetch)
		assert.Equal(t, 1, fx.fetcher.Calls())
		assert.Empty(t, *fx.slept)
	})

	t.Run("normalization failure fails the item", func(t *testing.T) {
		fx := newOrchestratorFixture(t, func(call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
			return rawPage(1, ""), nil
		})
		fx.orchestrator.registry = &fakeRegistry{bundle: &ingestion.CapabilityBundle{
			Auth:    fx.auth,
			Fetcher: fx.fetcher,
			Normalizer: &fakeNormalizer{
				platform: ingestion.PlatformAmazon,
				normalizeFn: func(page *ingestion.RawPage, itemID string) ([]ingestion.Review, error) {
					return nil, ingestion.ErrNormalization
				},
			},
		}}

		_, err := fx.orchestrator.FetchItem(ctx, fx.seller, jobID, "B000TEST")
		assert.ErrorIs(t, err, ingestion.ErrNormalization)
	})

	t.Run("existing raw page is not rewritten", func(t *testing.T) {
		fx := newOrchestratorFixture(t, func(call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
			return rawPage(1, ""), nil
		})

		// Pre-write the raw key the orchestrator will compute. The
		// write-once store would reject a second save of the same key.
		key := storage.RawPageKey("amazon", "seller-1", "B000TEST", time.Now().UTC(), jobID.String(), 1)
		require.NoError(t, fx.store.SaveRaw(ctx, key, []byte(`{"page":0}`)))

		outcome, err := fx.orchestrator.FetchItem(ctx, fx.seller, jobID, "B000TEST")
		require.NoError(t, err)
		require.Len(t, outcome.RawKeys, 1)
		assert.Equal(t, key, outcome.RawKeys[0])

		// The pre-existing content survived
		data, ok := fx.store.Get(key)
		require.True(t, ok)
		assert.JSONEq(t, `{"page":0}`, string(data))
	})
}
