package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// Platform registry errors
	ErrUnknownPlatform       = errors.New("ingestion: unknown platform")
	ErrDuplicateRegistration = errors.New("ingestion: platform already registered")

	// Seller errors
	ErrSellerNotFound  = errors.New("ingestion: seller not found")
	ErrSellerNotActive = errors.New("ingestion: seller not active")

	// Credential errors
	ErrAuthExpired = errors.New("ingestion: authorization expired, seller must reauthorize")
	ErrAuthRevoked = errors.New("ingestion: authorization permanently revoked by provider")

	// Fetch errors
	ErrTransientFetch = errors.New("ingestion: transient fetch failure")
	ErrPermanentFetch = errors.New("ingestion: permanent fetch failure")

	// Item-level processing errors
	ErrNormalization = errors.New("ingestion: raw payload violates expected shape")
	ErrStorage       = errors.New("ingestion: artifact storage failure")

	// Job errors
	ErrJobNotFound          = errors.New("ingestion: job not found")
	ErrJobNoItems           = errors.New("ingestion: job requires at least one item")
	ErrJobInvalidTransition = errors.New("ingestion: invalid job status transition")
	ErrJobAlreadyTerminal   = errors.New("ingestion: job already in terminal status")
)

// ---------------------------------------------------------------------------
// PlatformCode
// ---------------------------------------------------------------------------

// PlatformCode identifies an external review data source. The set of
// supported platforms is closed and known at build time; registration of
// an unknown code is rejected at startup, not at call time.
type PlatformCode string

const (
	// PlatformAmazon represents the Amazon Selling Partner API
	PlatformAmazon PlatformCode = "amazon"
	// PlatformShopify represents the Shopify Admin API
	PlatformShopify PlatformCode = "shopify"
)

// IsValid returns true if the platform code is valid
func (c PlatformCode) IsValid() bool {
	switch c {
	case PlatformAmazon, PlatformShopify:
		return true
	default:
		return false
	}
}

// String returns the string representation of PlatformCode
func (c PlatformCode) String() string {
	return string(c)
}

// AllPlatformCodes returns every valid platform code
func AllPlatformCodes() []PlatformCode {
	return []PlatformCode{PlatformAmazon, PlatformShopify}
}

// ---------------------------------------------------------------------------
// Credentials
// ---------------------------------------------------------------------------

// Credentials is the short-lived value object handed to a fetcher. It is
// never persisted as plaintext; only the encrypted refresh artifact and
// the cached access token live in storage.
type Credentials struct {
	// SellerID is the seller these credentials belong to
	SellerID string
	// Platform identifies the issuing platform
	Platform PlatformCode
	// AccessToken is the short-lived bearer token
	AccessToken string
	// ExpiresAt is when the access token expires
	ExpiresAt time.Time
	// MarketplaceID scopes Amazon requests to one marketplace
	MarketplaceID string
	// Region selects the Amazon API endpoint (na, eu, fe)
	Region string
	// ShopDomain scopes Shopify requests to one shop
	ShopDomain string
}

// ValidFor returns true if the access token is still usable given the
// configured safety margin before expiry.
func (c Credentials) ValidFor(margin time.Duration) bool {
	if c.AccessToken == "" || c.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Before(c.ExpiresAt.Add(-margin))
}

// TokenResponse is the result of an OAuth code exchange or token refresh.
type TokenResponse struct {
	// AccessToken is the new short-lived access token
	AccessToken string
	// RefreshToken is the long-lived secret; empty if the provider did
	// not rotate it
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int
	// Scope is the granted scope string, if any
	Scope string
}

// ExpiresAt converts ExpiresIn to an absolute expiry from now.
func (t TokenResponse) ExpiresAt() time.Time {
	return time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
}

// ---------------------------------------------------------------------------
// Fetch outcome classification
// ---------------------------------------------------------------------------

// FetchClass classifies a failed fetch attempt and drives the retry policy.
type FetchClass string

const (
	// FetchClassTransient covers network timeouts, 5xx and 429 responses;
	// retried with backoff
	FetchClassTransient FetchClass = "transient"
	// FetchClassAuth covers 401/403 responses; triggers one forced
	// credential refresh
	FetchClassAuth FetchClass = "auth"
	// FetchClassPermanent covers the remaining 4xx responses; never retried
	FetchClassPermanent FetchClass = "permanent"
)

// FetchError is the typed failure a fetcher reports. The orchestrator uses
// Class and RetryAfter to decide between retry, forced reauth and
// immediate failure.
type FetchError struct {
	// Platform is the platform that produced the failure
	Platform PlatformCode
	// Class is the retry classification
	Class FetchClass
	// StatusCode is the HTTP status, 0 for transport-level failures
	StatusCode int
	// RetryAfter carries an explicit provider throttle signal, if present
	RetryAfter time.Duration
	// Err is the underlying cause
	Err error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("ingestion: %s fetch failed (%s, HTTP %d): %v", e.Platform, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ingestion: %s fetch failed (%s): %v", e.Platform, e.Class, e.Err)
}

// Unwrap exposes the classification sentinel so errors.Is works against
// ErrTransientFetch / ErrPermanentFetch / ErrAuthExpired.
func (e *FetchError) Unwrap() error {
	switch e.Class {
	case FetchClassTransient:
		return ErrTransientFetch
	case FetchClassAuth:
		return ErrAuthExpired
	default:
		return ErrPermanentFetch
	}
}

// ClassifyStatus maps an HTTP status code to a fetch class.
func ClassifyStatus(status int) FetchClass {
	switch {
	case status == 429:
		return FetchClassTransient
	case status >= 500:
		return FetchClassTransient
	case status == 401 || status == 403:
		return FetchClassAuth
	default:
		return FetchClassPermanent
	}
}

// NewFetchError builds a FetchError from an HTTP status code.
func NewFetchError(platform PlatformCode, status int, retryAfter time.Duration, cause error) *FetchError {
	return &FetchError{
		Platform:   platform,
		Class:      ClassifyStatus(status),
		StatusCode: status,
		RetryAfter: retryAfter,
		Err:        cause,
	}
}

// NewTransportError builds a transient FetchError for failures below the
// HTTP layer (DNS, connect, timeout).
func NewTransportError(platform PlatformCode, cause error) *FetchError {
	return &FetchError{
		Platform: platform,
		Class:    FetchClassTransient,
		Err:      cause,
	}
}

// ---------------------------------------------------------------------------
// Capability ports
// ---------------------------------------------------------------------------

// FetchParams describes one page request against a platform fetcher. The
// item identifier is opaque per platform (ASIN, product id, etc.).
type FetchParams struct {
	// ItemID is the platform-specific product identifier
	ItemID string
	// PageToken resumes pagination; empty for the first page
	PageToken string
	// PageSize is the requested page size; adapters clamp to platform limits
	PageSize int
}

// RawPage is one page of raw provider output, exactly as returned.
type RawPage struct {
	// PageNumber is 1-indexed within the item fetch
	PageNumber int
	// NextToken continues pagination; empty when this is the last page
	NextToken string
	// Body is the unmodified provider response payload
	Body []byte
}

// AuthClient performs the OAuth flow for one platform. The shopDomain
// argument scopes shop-centric platforms (Shopify) to one shop; platforms
// with a central token endpoint ignore it.
type AuthClient interface {
	// PlatformCode returns the platform this client handles
	PlatformCode() PlatformCode

	// AuthorizationURL returns the provider consent URL for the given
	// opaque state value
	AuthorizationURL(shopDomain, state string) (string, error)

	// ExchangeCode swaps an authorization code for tokens
	ExchangeCode(ctx context.Context, shopDomain, code string) (*TokenResponse, error)

	// Refresh obtains a new access token from a long-lived refresh
	// secret. A permanently revoked grant is reported as ErrAuthRevoked;
	// anything else is a transient failure.
	Refresh(ctx context.Context, shopDomain, refreshToken string) (*TokenResponse, error)
}

// ReviewFetcher retrieves raw review pages for one platform.
type ReviewFetcher interface {
	// PlatformCode returns the platform this fetcher handles
	PlatformCode() PlatformCode

	// FetchPage retrieves a single page of reviews. Failures are
	// reported as *FetchError so callers can classify them.
	FetchPage(ctx context.Context, creds Credentials, params FetchParams) (*RawPage, error)
}

// ReviewNormalizer converts raw provider payloads to canonical reviews.
type ReviewNormalizer interface {
	// PlatformCode returns the platform this normalizer handles
	PlatformCode() PlatformCode

	// NormalizePage converts one raw page into canonical reviews,
	// failing with ErrNormalization when the payload violates the
	// expected shape.
	NormalizePage(page *RawPage, itemID string) ([]Review, error)
}

// CapabilityBundle is the triad of operations a platform must implement
// to plug into the orchestration core.
type CapabilityBundle struct {
	Auth       AuthClient
	Fetcher    ReviewFetcher
	Normalizer ReviewNormalizer
}

// PlatformRegistry resolves a platform code to its capability bundle.
// Implementations are populated during process initialization and are
// read-only thereafter; components receive the registry by injection.
type PlatformRegistry interface {
	// Resolve returns the capability bundle for the code, or
	// ErrUnknownPlatform if it was never registered
	Resolve(code PlatformCode) (*CapabilityBundle, error)

	// Platforms returns all registered platform codes
	Platforms() []PlatformCode
}
