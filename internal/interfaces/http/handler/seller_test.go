package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	ingestionapp "github.com/reviewsync/backend/internal/application/ingestion"
	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/interfaces/http/dto"
)

// fakeCredentialAPI scripts the credential service for handler tests.
type fakeCredentialAPI struct {
	beginFn    func(platform ingestion.PlatformCode, shopDomain, state string) (string, error)
	completeFn func(ctx context.Context, in ingestionapp.AuthorizationInput, code string) (*ingestion.Seller, error)
	refreshFn  func(ctx context.Context, sellerID string) (ingestion.Credentials, error)
	metadataFn func(ctx context.Context, sellerID string) (*ingestionapp.TokenMetadata, error)
}

func (f *fakeCredentialAPI) BeginAuthorization(platform ingestion.PlatformCode, shopDomain, state string) (string, error) {
	return f.beginFn(platform, shopDomain, state)
}

func (f *fakeCredentialAPI) CompleteAuthorization(ctx context.Context, in ingestionapp.AuthorizationInput, code string) (*ingestion.Seller, error) {
	return f.completeFn(ctx, in, code)
}

func (f *fakeCredentialAPI) ForceRefresh(ctx context.Context, sellerID string) (ingestion.Credentials, error) {
	return f.refreshFn(ctx, sellerID)
}

func (f *fakeCredentialAPI) GetTokenMetadata(ctx context.Context, sellerID string) (*ingestionapp.TokenMetadata, error) {
	return f.metadataFn(ctx, sellerID)
}

func newSellerRouter(api *fakeCredentialAPI) *gin.Engine {
	engine := gin.New()
	rg := engine.Group("/api/v1")
	NewSellerHandler(api).RegisterRoutes(rg)
	return engine
}

func TestSellerHandler_StartAuthorization(t *testing.T) {
	t.Run("returns the consent url", func(t *testing.T) {
		api := &fakeCredentialAPI{
			beginFn: func(platform ingestion.PlatformCode, shopDomain, state string) (string, error) {
				assert.Equal(t, ingestion.PlatformShopify, platform)
				assert.Equal(t, "demo.myshopify.com", shopDomain)
				assert.Equal(t, "nonce-1", state)
				return "https://demo.myshopify.com/admin/oauth/authorize?state=nonce-1", nil
			},
		}
		router := newSellerRouter(api)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/shopify/start?shop_domain=demo.myshopify.com&state=nonce-1", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w.Body)
		data := resp.Data.(map[string]any)
		assert.Contains(t, data["authorization_url"], "oauth/authorize")
		assert.Equal(t, "nonce-1", data["state"])
	})

	t.Run("missing state", func(t *testing.T) {
		router := newSellerRouter(&fakeCredentialAPI{})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/shopify/start?shop_domain=demo.myshopify.com", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w.Body)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	})

	t.Run("unknown platform", func(t *testing.T) {
		api := &fakeCredentialAPI{
			beginFn: func(platform ingestion.PlatformCode, shopDomain, state string) (string, error) {
				return "", ingestion.ErrUnknownPlatform
			},
		}
		router := newSellerRouter(api)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/ebay/start?state=nonce-1", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w.Body)
		assert.Equal(t, dto.ErrCodeUnknownPlatform, resp.Error.Code)
	})
}

func TestSellerHandler_CompleteAuthorization(t *testing.T) {
	t.Run("persists the seller", func(t *testing.T) {
		api := &fakeCredentialAPI{
			completeFn: func(ctx context.Context, in ingestionapp.AuthorizationInput, code string) (*ingestion.Seller, error) {
				assert.Equal(t, "seller-1", in.SellerID)
				assert.Equal(t, ingestion.PlatformAmazon, in.Platform)
				assert.Equal(t, "ATVPDKIKX0DER", in.MarketplaceID)
				assert.Equal(t, "spapi_oauth_code", code)
				return &ingestion.Seller{
					ID:            in.SellerID,
					Platform:      in.Platform,
					Status:        ingestion.SellerStatusActive,
					MarketplaceID: in.MarketplaceID,
					CreatedAt:     time.Now(),
					UpdatedAt:     time.Now(),
				}, nil
			},
		}
		router := newSellerRouter(api)

		body := `{"seller_id":"seller-1","code":"spapi_oauth_code","marketplace_id":"ATVPDKIKX0DER"}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/amazon/callback", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		resp := decodeResponse(t, w.Body)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "seller-1", data["seller_id"])
		assert.Equal(t, "active", data["status"])
	})

	t.Run("missing code", func(t *testing.T) {
		router := newSellerRouter(&fakeCredentialAPI{})

		body := `{"seller_id":"seller-1"}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/amazon/callback", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("expired grant maps to 422", func(t *testing.T) {
		api := &fakeCredentialAPI{
			completeFn: func(ctx context.Context, in ingestionapp.AuthorizationInput, code string) (*ingestion.Seller, error) {
				return nil, ingestion.ErrAuthExpired
			},
		}
		router := newSellerRouter(api)

		body := `{"seller_id":"seller-1","code":"stale-code"}`
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/amazon/callback", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decodeResponse(t, w.Body)
		assert.Equal(t, dto.ErrCodeReauthorizeRequired, resp.Error.Code)
	})
}

func TestSellerHandler_RefreshToken(t *testing.T) {
	t.Run("returns the new expiry", func(t *testing.T) {
		expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		api := &fakeCredentialAPI{
			refreshFn: func(ctx context.Context, sellerID string) (ingestion.Credentials, error) {
				assert.Equal(t, "seller-1", sellerID)
				return ingestion.Credentials{
					SellerID:  sellerID,
					Platform:  ingestion.PlatformAmazon,
					ExpiresAt: expiresAt,
				}, nil
			},
		}
		router := newSellerRouter(api)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sellers/seller-1/refresh-token", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w.Body)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "seller-1", data["seller_id"])
		// Access tokens themselves are never exposed
		assert.NotContains(t, w.Body.String(), "access_token\":")
	})

	t.Run("revoked grant maps to 422", func(t *testing.T) {
		api := &fakeCredentialAPI{
			refreshFn: func(ctx context.Context, sellerID string) (ingestion.Credentials, error) {
				return ingestion.Credentials{}, ingestion.ErrAuthRevoked
			},
		}
		router := newSellerRouter(api)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sellers/seller-1/refresh-token", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp := decodeResponse(t, w.Body)
		assert.Equal(t, dto.ErrCodeReauthorizeRequired, resp.Error.Code)
	})
}

func TestSellerHandler_GetTokenMetadata(t *testing.T) {
	t.Run("returns credential state without secrets", func(t *testing.T) {
		refreshedAt := time.Now().Add(-10 * time.Minute)
		api := &fakeCredentialAPI{
			metadataFn: func(ctx context.Context, sellerID string) (*ingestionapp.TokenMetadata, error) {
				return &ingestionapp.TokenMetadata{
					SellerID:           sellerID,
					Platform:           ingestion.PlatformShopify,
					Status:             ingestion.SellerStatusActive,
					HasRefreshToken:    true,
					LastTokenRefreshAt: &refreshedAt,
				}, nil
			},
		}
		router := newSellerRouter(api)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sellers/seller-1/tokens", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w.Body)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "shopify", data["platform"])
		assert.Equal(t, true, data["has_refresh_token"])
	})

	t.Run("unknown seller", func(t *testing.T) {
		api := &fakeCredentialAPI{
			metadataFn: func(ctx context.Context, sellerID string) (*ingestionapp.TokenMetadata, error) {
				return nil, ingestion.ErrSellerNotFound
			},
		}
		router := newSellerRouter(api)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sellers/missing/tokens", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

var _ CredentialAPI = (*fakeCredentialAPI)(nil)
