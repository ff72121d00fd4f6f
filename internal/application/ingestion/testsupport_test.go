package ingestion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reviewsync/backend/internal/domain/ingestion"
)

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type fakeSellerRepo struct {
	mu      sync.Mutex
	sellers map[string]*ingestion.Seller
}

func newFakeSellerRepo() *fakeSellerRepo {
	return &fakeSellerRepo{sellers: make(map[string]*ingestion.Seller)}
}

func (r *fakeSellerRepo) Save(ctx context.Context, seller *ingestion.Seller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *seller
	r.sellers[seller.ID] = &cp
	return nil
}

func (r *fakeSellerRepo) FindByID(ctx context.Context, id string) (*ingestion.Seller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seller, ok := r.sellers[id]
	if !ok {
		return nil, ingestion.ErrSellerNotFound
	}
	cp := *seller
	return &cp, nil
}

func (r *fakeSellerRepo) UpdateStatus(ctx context.Context, id string, status ingestion.SellerStatus, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seller, ok := r.sellers[id]
	if !ok {
		return ingestion.ErrSellerNotFound
	}
	seller.Status = status
	seller.LastTokenRefreshError = cause
	if status == ingestion.SellerStatusReauthorizeRequired {
		seller.AccessTokenCached = ""
		seller.AccessTokenExpiresAt = nil
	}
	return nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*ingestion.FetchJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uuid.UUID]*ingestion.FetchJob)}
}

func (r *fakeJobRepo) Create(ctx context.Context, job *ingestion.FetchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeJobRepo) FindByID(ctx context.Context, id uuid.UUID) (*ingestion.FetchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ingestion.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *fakeJobRepo) MarkStarted(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ingestion.ErrJobNotFound
	}
	if job.Status != ingestion.JobStatusPending {
		return ingestion.ErrJobInvalidTransition
	}
	now := time.Now()
	job.Status = ingestion.JobStatusRunning
	job.StartedAt = &now
	return nil
}

func (r *fakeJobRepo) RecordItemOutcome(ctx context.Context, id uuid.UUID, success bool, reviews int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ingestion.ErrJobNotFound
	}
	if job.CompletedItems+job.FailedItems >= job.TotalItems {
		return ingestion.ErrJobInvalidTransition
	}
	if success {
		job.CompletedItems++
		job.ReviewsFetchedTotal += reviews
	} else {
		job.FailedItems++
	}
	return nil
}

func (r *fakeJobRepo) Finalize(ctx context.Context, job *ingestion.FetchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok {
		return ingestion.ErrJobNotFound
	}
	stored.Status = job.Status
	stored.ErrorMessage = job.ErrorMessage
	stored.CompletedAt = job.CompletedAt
	return nil
}

func (r *fakeJobRepo) ListBySeller(ctx context.Context, sellerID string, limit, offset int, orderBy, orderDir string) ([]*ingestion.FetchJob, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ingestion.FetchJob
	for _, job := range r.jobs {
		if job.SellerID == sellerID {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

type fakeItemRepo struct {
	mu      sync.Mutex
	results map[uuid.UUID]*ingestion.ItemFetchResult
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{results: make(map[uuid.UUID]*ingestion.ItemFetchResult)}
}

func (r *fakeItemRepo) CreateBatch(ctx context.Context, results []*ingestion.ItemFetchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range results {
		cp := *res
		r.results[res.ID] = &cp
	}
	return nil
}

func (r *fakeItemRepo) Update(ctx context.Context, result *ingestion.ItemFetchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *result
	r.results[result.ID] = &cp
	return nil
}

func (r *fakeItemRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*ingestion.ItemFetchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ingestion.ItemFetchResult
	for _, res := range r.results {
		if res.JobID == jobID {
			cp := *res
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// ---------------------------------------------------------------------------
// Capability fakes
// ---------------------------------------------------------------------------

type fakeAuthClient struct {
	platform ingestion.PlatformCode

	mu           sync.Mutex
	refreshCalls int
	refreshFn    func(shopDomain, refreshToken string) (*ingestion.TokenResponse, error)
	exchangeFn   func(shopDomain, code string) (*ingestion.TokenResponse, error)
}

func (a *fakeAuthClient) PlatformCode() ingestion.PlatformCode { return a.platform }

func (a *fakeAuthClient) AuthorizationURL(shopDomain, state string) (string, error) {
	return "https://auth.example.com/consent?state=" + state, nil
}

func (a *fakeAuthClient) ExchangeCode(ctx context.Context, shopDomain, code string) (*ingestion.TokenResponse, error) {
	if a.exchangeFn != nil {
		return a.exchangeFn(shopDomain, code)
	}
	return &ingestion.TokenResponse{AccessToken: "exchanged-token", RefreshToken: "long-lived-secret", ExpiresIn: 3600}, nil
}

func (a *fakeAuthClient) Refresh(ctx context.Context, shopDomain, refreshToken string) (*ingestion.TokenResponse, error) {
	a.mu.Lock()
	a.refreshCalls++
	a.mu.Unlock()
	if a.refreshFn != nil {
		return a.refreshFn(shopDomain, refreshToken)
	}
	return &ingestion.TokenResponse{AccessToken: "refreshed-token", ExpiresIn: 3600}, nil
}

func (a *fakeAuthClient) RefreshCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshCalls
}

type fakeFetcher struct {
	platform ingestion.PlatformCode

	mu      sync.Mutex
	calls   int
	fetchFn func(call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error)
	// fetchCtxFn takes precedence over fetchFn when tests need to observe
	// the request context, the way an HTTP client would
	fetchCtxFn func(ctx context.Context, call int, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error)
}

func (f *fakeFetcher) PlatformCode() ingestion.PlatformCode { return f.platform }

func (f *fakeFetcher) FetchPage(ctx context.Context, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.fetchCtxFn != nil {
		return f.fetchCtxFn(ctx, call, creds, params)
	}
	return f.fetchFn(call, creds, params)
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNormalizer struct {
	platform    ingestion.PlatformCode
	normalizeFn func(page *ingestion.RawPage, itemID string) ([]ingestion.Review, error)
}

func (n *fakeNormalizer) PlatformCode() ingestion.PlatformCode { return n.platform }

func (n *fakeNormalizer) NormalizePage(page *ingestion.RawPage, itemID string) ([]ingestion.Review, error) {
	if n.normalizeFn != nil {
		return n.normalizeFn(page, itemID)
	}
	return []ingestion.Review{{
		ReviewID: "r1",
		ItemID:   itemID,
		Platform: n.platform,
		Rating:   5,
	}}, nil
}

// fakeRegistry resolves a single bundle for every platform.
type fakeRegistry struct {
	bundle *ingestion.CapabilityBundle
}

func (r *fakeRegistry) Resolve(code ingestion.PlatformCode) (*ingestion.CapabilityBundle, error) {
	if !code.IsValid() {
		return nil, ingestion.ErrUnknownPlatform
	}
	return r.bundle, nil
}

func (r *fakeRegistry) Platforms() []ingestion.PlatformCode {
	return ingestion.AllPlatformCodes()
}

// fakeDispatcher records dispatched job ids.
type fakeDispatcher struct {
	mu   sync.Mutex
	ids  []uuid.UUID
	fail error
}

func (d *fakeDispatcher) Dispatch(jobID uuid.UUID) error {
	if d.fail != nil {
		return d.fail
	}
	d.mu.Lock()
	d.ids = append(d.ids, jobID)
	d.mu.Unlock()
	return nil
}

func (d *fakeDispatcher) Dispatched() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.ids...)
}
