package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/infrastructure/crypto"
	"github.com/reviewsync/backend/internal/infrastructure/telemetry"
)

// CredentialService hands out valid short-lived access tokens for sellers.
// Refresh tokens are stored envelope-encrypted; the plaintext only exists
// in memory for the duration of a refresh call.
type CredentialService struct {
	sellers      ingestion.SellerRepository
	registry     ingestion.PlatformRegistry
	cipher       *crypto.Envelope
	safetyMargin time.Duration
	logger       *zap.Logger
	metrics      *telemetry.IngestionMetrics

	// group collapses concurrent refreshes for the same seller into one
	// upstream call; waiters share the winner's result.
	group singleflight.Group
}

// NewCredentialService creates a CredentialService
func NewCredentialService(
	sellers ingestion.SellerRepository,
	registry ingestion.PlatformRegistry,
	cipher *crypto.Envelope,
	safetyMargin time.Duration,
	logger *zap.Logger,
) *CredentialService {
	if safetyMargin <= 0 {
		safetyMargin = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{
		sellers:      sellers,
		registry:     registry,
		cipher:       cipher,
		safetyMargin: safetyMargin,
		logger:       logger,
	}
}

// SetMetrics sets the ingestion metrics collector
func (s *CredentialService) SetMetrics(m *telemetry.IngestionMetrics) {
	s.metrics = m
}

func (s *CredentialService) recordRefresh(ctx context.Context, platform ingestion.PlatformCode, outcome telemetry.RefreshOutcome) {
	if s.metrics != nil {
		s.metrics.RecordTokenRefresh(ctx, platform.String(), outcome)
	}
}

// GetValidCredentials returns credentials whose access token is valid for
// at least the safety margin, refreshing through the platform AuthClient
// when the cached token is missing or about to expire.
func (s *CredentialService) GetValidCredentials(ctx context.Context, sellerID string) (ingestion.Credentials, error) {
	seller, err := s.sellers.FindByID(ctx, sellerID)
	if err != nil {
		return ingestion.Credentials{}, err
	}
	if !seller.IsActive() {
		return ingestion.Credentials{}, fmt.Errorf("%w: seller %s is %s", ingestion.ErrSellerNotActive, seller.ID, seller.Status)
	}

	if creds := seller.CredentialsView(); creds.ValidFor(s.safetyMargin) {
		return creds, nil
	}

	return s.refresh(ctx, sellerID, false)
}

// ForceRefresh discards the cached access token and refreshes immediately.
// The orchestrator calls this once after a 401/403 from the platform API.
func (s *CredentialService) ForceRefresh(ctx context.Context, sellerID string) (ingestion.Credentials, error) {
	s.group.Forget(sellerID)
	return s.refresh(ctx, sellerID, true)
}

func (s *CredentialService) refresh(ctx context.Context, sellerID string, force bool) (ingestion.Credentials, error) {
	v, err, _ := s.group.Do(sellerID, func() (interface{}, error) {
		return s.doRefresh(ctx, sellerID, force)
	})
	if err != nil {
		return ingestion.Credentials{}, err
	}
	return v.(ingestion.Credentials), nil
}

func (s *CredentialService) doRefresh(ctx context.Context, sellerID string, force bool) (ingestion.Credentials, error) {
	seller, err := s.sellers.FindByID(ctx, sellerID)
	if err != nil {
		return ingestion.Credentials{}, err
	}
	if !seller.IsActive() {
		return ingestion.Credentials{}, fmt.Errorf("%w: seller %s is %s", ingestion.ErrSellerNotActive, seller.ID, seller.Status)
	}

	// A flight that just finished may have refreshed for us already. A
	// forced refresh skips this: the platform just rejected the cached
	// token regardless of its expiry.
	if creds := seller.CredentialsView(); !force && creds.ValidFor(s.safetyMargin) {
		return creds, nil
	}

	bundle, err := s.registry.Resolve(seller.Platform)
	if err != nil {
		return ingestion.Credentials{}, err
	}

	refreshToken, err := s.cipher.Open(seller.EncryptedRefreshToken)
	if err != nil {
		return ingestion.Credentials{}, fmt.Errorf("decrypt refresh token for seller %s: %w", seller.ID, err)
	}

	token, err := bundle.Auth.Refresh(ctx, seller.ShopDomain, string(refreshToken))
	if err != nil {
		if errors.Is(err, ingestion.ErrAuthRevoked) {
			s.logger.Warn("seller authorization revoked by provider",
				zap.String("seller_id", seller.ID),
				zap.String("platform", seller.Platform.String()),
				zap.Error(err))
			if uerr := s.sellers.UpdateStatus(ctx, seller.ID, ingestion.SellerStatusReauthorizeRequired, err.Error()); uerr != nil {
				s.logger.Error("failed to flag seller for reauthorization",
					zap.String("seller_id", seller.ID), zap.Error(uerr))
			}
			s.recordRefresh(ctx, seller.Platform, telemetry.RefreshOutcomeRevoked)
			return ingestion.Credentials{}, fmt.Errorf("%w: %s", ingestion.ErrAuthExpired, seller.ID)
		}

		s.recordRefresh(ctx, seller.Platform, telemetry.RefreshOutcomeFailed)
		seller.RecordRefreshFailure(err.Error())
		if serr := s.sellers.Save(ctx, seller); serr != nil {
			s.logger.Error("failed to record refresh failure",
				zap.String("seller_id", seller.ID), zap.Error(serr))
		}
		return ingestion.Credentials{}, fmt.Errorf("refresh credentials for seller %s: %w", seller.ID, err)
	}

	// Some providers rotate the long-lived secret on refresh.
	if token.RefreshToken != "" {
		sealed, serr := s.cipher.Seal([]byte(token.RefreshToken))
		if serr != nil {
			return ingestion.Credentials{}, fmt.Errorf("encrypt rotated refresh token for seller %s: %w", seller.ID, serr)
		}
		seller.EncryptedRefreshToken = sealed
	}

	seller.CacheAccessToken(token.AccessToken, token.ExpiresAt())
	if err := s.sellers.Save(ctx, seller); err != nil {
		return ingestion.Credentials{}, fmt.Errorf("persist refreshed credentials for seller %s: %w", seller.ID, err)
	}

	s.recordRefresh(ctx, seller.Platform, telemetry.RefreshOutcomeSuccess)
	s.logger.Debug("refreshed seller credentials",
		zap.String("seller_id", seller.ID),
		zap.String("platform", seller.Platform.String()),
		zap.Time("expires_at", token.ExpiresAt()))

	return seller.CredentialsView(), nil
}

// MarkReauthorizeRequired flags the seller after the platform rejected a
// freshly refreshed token. New jobs for the seller are refused until a new
// OAuth flow completes.
func (s *CredentialService) MarkReauthorizeRequired(ctx context.Context, sellerID, cause string) error {
	return s.sellers.UpdateStatus(ctx, sellerID, ingestion.SellerStatusReauthorizeRequired, cause)
}

// ---------------------------------------------------------------------------
// OAuth flow
// ---------------------------------------------------------------------------

// AuthorizationInput identifies the seller completing an OAuth flow.
type AuthorizationInput struct {
	SellerID      string
	Platform      ingestion.PlatformCode
	ShopDomain    string
	MarketplaceID string
	Name          string
	Email         string
}

// BeginAuthorization returns the provider consent URL for a new seller
// authorization.
func (s *CredentialService) BeginAuthorization(platform ingestion.PlatformCode, shopDomain, state string) (string, error) {
	bundle, err := s.registry.Resolve(platform)
	if err != nil {
		return "", err
	}
	return bundle.Auth.AuthorizationURL(shopDomain, state)
}

// CompleteAuthorization exchanges an authorization code and persists the
// seller with its encrypted long-lived secret. An existing seller is
// reactivated; this is how a reauthorize_required seller comes back.
func (s *CredentialService) CompleteAuthorization(ctx context.Context, in AuthorizationInput, code string) (*ingestion.Seller, error) {
	bundle, err := s.registry.Resolve(in.Platform)
	if err != nil {
		return nil, err
	}

	token, err := bundle.Auth.ExchangeCode(ctx, in.ShopDomain, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code for seller %s: %w", in.SellerID, err)
	}

	// Shopify issues a single non-expiring token; it doubles as the
	// long-lived secret.
	secret := token.RefreshToken
	if secret == "" {
		secret = token.AccessToken
	}
	sealed, err := s.cipher.Seal([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token for seller %s: %w", in.SellerID, err)
	}

	seller, err := s.sellers.FindByID(ctx, in.SellerID)
	if err != nil {
		if !errors.Is(err, ingestion.ErrSellerNotFound) {
			return nil, err
		}
		seller = &ingestion.Seller{
			ID:       in.SellerID,
			Platform: in.Platform,
		}
	}

	seller.Platform = in.Platform
	seller.Status = ingestion.SellerStatusActive
	seller.EncryptedRefreshToken = sealed
	seller.ShopDomain = in.ShopDomain
	seller.MarketplaceID = in.MarketplaceID
	if in.Name != "" {
		seller.Name = in.Name
	}
	if in.Email != "" {
		seller.Email = in.Email
	}
	seller.CacheAccessToken(token.AccessToken, token.ExpiresAt())

	if err := s.sellers.Save(ctx, seller); err != nil {
		return nil, fmt.Errorf("persist seller %s: %w", in.SellerID, err)
	}

	s.logger.Info("seller authorized",
		zap.String("seller_id", seller.ID),
		zap.String("platform", seller.Platform.String()))

	return seller, nil
}

// TokenMetadata is the non-secret view of a seller's credential state.
type TokenMetadata struct {
	SellerID              string
	Platform              ingestion.PlatformCode
	Status                ingestion.SellerStatus
	HasRefreshToken       bool
	AccessTokenExpiresAt  *time.Time
	LastTokenRefreshAt    *time.Time
	LastTokenRefreshError string
}

// GetTokenMetadata returns credential metadata without exposing any secret.
func (s *CredentialService) GetTokenMetadata(ctx context.Context, sellerID string) (*TokenMetadata, error) {
	seller, err := s.sellers.FindByID(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	return &TokenMetadata{
		SellerID:              seller.ID,
		Platform:              seller.Platform,
		Status:                seller.Status,
		HasRefreshToken:       seller.EncryptedRefreshToken != "",
		AccessTokenExpiresAt:  seller.AccessTokenExpiresAt,
		LastTokenRefreshAt:    seller.LastTokenRefreshAt,
		LastTokenRefreshError: seller.LastTokenRefreshError,
	}, nil
}
