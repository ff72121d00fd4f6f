package ingestion

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// SellerStatus
// ---------------------------------------------------------------------------

// SellerStatus represents the authorization lifecycle of a seller.
// Sellers are never physically deleted, only status-transitioned.
type SellerStatus string

const (
	// SellerStatusActive indicates the seller has a usable authorization
	SellerStatusActive SellerStatus = "active"
	// SellerStatusReauthorizeRequired indicates the provider reported the
	// grant as permanently revoked; a new OAuth flow is required
	SellerStatusReauthorizeRequired SellerStatus = "reauthorize_required"
	// SellerStatusDisabled indicates the seller was switched off manually
	SellerStatusDisabled SellerStatus = "disabled"
)

// IsValid returns true if the status is valid
func (s SellerStatus) IsValid() bool {
	switch s {
	case SellerStatusActive, SellerStatusReauthorizeRequired, SellerStatusDisabled:
		return true
	default:
		return false
	}
}

// String returns the string representation of SellerStatus
func (s SellerStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Seller
// ---------------------------------------------------------------------------

// Seller is the account on whose behalf items are fetched. It owns one
// credential record: the encrypted long-lived refresh secret plus a cached
// short-lived access token with its expiry.
type Seller struct {
	// ID is the platform-issued seller / shop identifier
	ID string
	// Platform identifies which platform this seller belongs to
	Platform PlatformCode
	// Status is the authorization lifecycle status
	Status SellerStatus

	// EncryptedRefreshToken is the envelope-encrypted long-lived secret
	EncryptedRefreshToken string
	// AccessTokenCached is the short-lived access token, if still held
	AccessTokenCached string
	// AccessTokenExpiresAt is the cached token expiry
	AccessTokenExpiresAt *time.Time

	// MarketplaceID scopes Amazon sellers to one marketplace
	MarketplaceID string
	// ShopDomain scopes Shopify sellers to one shop
	ShopDomain string

	// Name is an optional display name
	Name string
	// Email is an optional contact address
	Email string

	CreatedAt time.Time
	UpdatedAt time.Time
	// LastTokenRefreshAt is when a refresh was last attempted
	LastTokenRefreshAt *time.Time
	// LastTokenRefreshError records the most recent refresh failure
	LastTokenRefreshError string
}

// IsActive returns true if the seller may be fetched for
func (s *Seller) IsActive() bool {
	return s.Status == SellerStatusActive
}

// CacheAccessToken stores a freshly issued access token with its expiry.
func (s *Seller) CacheAccessToken(token string, expiresAt time.Time) {
	now := time.Now()
	s.AccessTokenCached = token
	s.AccessTokenExpiresAt = &expiresAt
	s.LastTokenRefreshAt = &now
	s.LastTokenRefreshError = ""
}

// MarkReauthorizeRequired transitions the seller after a permanent
// revocation. The cached access token is discarded; the encrypted refresh
// secret is kept for audit.
func (s *Seller) MarkReauthorizeRequired(cause string) {
	now := time.Now()
	s.Status = SellerStatusReauthorizeRequired
	s.AccessTokenCached = ""
	s.AccessTokenExpiresAt = nil
	s.LastTokenRefreshAt = &now
	s.LastTokenRefreshError = cause
}

// RecordRefreshFailure notes a transient refresh failure without changing
// the lifecycle status.
func (s *Seller) RecordRefreshFailure(cause string) {
	now := time.Now()
	s.LastTokenRefreshAt = &now
	s.LastTokenRefreshError = cause
}

// CredentialsView builds the short-lived credentials value object from the
// currently cached token. The caller is responsible for checking validity.
func (s *Seller) CredentialsView() Credentials {
	creds := Credentials{
		SellerID:      s.ID,
		Platform:      s.Platform,
		AccessToken:   s.AccessTokenCached,
		MarketplaceID: s.MarketplaceID,
		ShopDomain:    s.ShopDomain,
		Region:        RegionForMarketplace(s.MarketplaceID),
	}
	if s.AccessTokenExpiresAt != nil {
		creds.ExpiresAt = *s.AccessTokenExpiresAt
	}
	return creds
}

// RegionForMarketplace maps an Amazon marketplace ID to its API region.
// Unknown marketplaces default to na.
func RegionForMarketplace(marketplaceID string) string {
	switch marketplaceID {
	case "ATVPDKIKX0DER", "A2EUQ1WTGCTBG2", "A1AM78C64UM0Y8": // US, CA, MX
		return "na"
	case "A1PA6795UKMFR9", "A1RKKUPIHCS9HS", "A13V1IB3VIYZZH": // DE, ES, FR
		return "eu"
	case "A1VC38T7YXB528", "A39IBJ37TRP1C6": // JP, AU
		return "fe"
	default:
		return "na"
	}
}

// ---------------------------------------------------------------------------
// SellerRepository
// ---------------------------------------------------------------------------

// SellerRepository persists seller credential records.
type SellerRepository interface {
	// Save creates or updates a seller
	Save(ctx context.Context, seller *Seller) error

	// FindByID finds a seller, failing with ErrSellerNotFound
	FindByID(ctx context.Context, id string) (*Seller, error)

	// UpdateStatus transitions the lifecycle status, recording an
	// optional error cause
	UpdateStatus(ctx context.Context, id string, status SellerStatus, cause string) error
}
