package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	ingestionapp "github.com/reviewsync/backend/internal/application/ingestion"
	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/interfaces/http/dto"
)

// CredentialAPI is the application surface the seller handler depends on.
type CredentialAPI interface {
	BeginAuthorization(platform ingestion.PlatformCode, shopDomain, state string) (string, error)
	CompleteAuthorization(ctx context.Context, in ingestionapp.AuthorizationInput, code string) (*ingestion.Seller, error)
	ForceRefresh(ctx context.Context, sellerID string) (ingestion.Credentials, error)
	GetTokenMetadata(ctx context.Context, sellerID string) (*ingestionapp.TokenMetadata, error)
}

// SellerHandler exposes seller authorization and credential endpoints
type SellerHandler struct {
	BaseHandler
	credentials CredentialAPI
}

// NewSellerHandler creates a new SellerHandler
func NewSellerHandler(credentials CredentialAPI) *SellerHandler {
	return &SellerHandler{credentials: credentials}
}

// RegisterRoutes registers auth and seller credential routes
func (h *SellerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	auth.GET("/:platform/start", h.StartAuthorization)
	auth.POST("/:platform/callback", h.CompleteAuthorization)

	sellers := rg.Group("/sellers")
	sellers.POST("/:id/refresh-token", h.RefreshToken)
	sellers.GET("/:id/tokens", h.GetTokenMetadata)
}

// StartAuthorization returns the provider consent URL for a platform
func (h *SellerHandler) StartAuthorization(c *gin.Context) {
	platform := ingestion.PlatformCode(c.Param("platform"))

	var req dto.AuthStartRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeValidation), dto.ErrCodeValidation, err.Error())
		return
	}

	url, err := h.credentials.BeginAuthorization(platform, req.ShopDomain, req.State)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.AuthStartResponse{
		AuthorizationURL: url,
		State:            req.State,
	})
}

// CompleteAuthorization exchanges the OAuth code and persists the seller
func (h *SellerHandler) CompleteAuthorization(c *gin.Context) {
	platform := ingestion.PlatformCode(c.Param("platform"))

	var req dto.AuthCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, dto.GetHTTPStatus(dto.ErrCodeValidation), dto.ErrCodeValidation, err.Error())
		return
	}

	seller, err := h.credentials.CompleteAuthorization(c.Request.Context(), ingestionapp.AuthorizationInput{
		SellerID:      req.SellerID,
		Platform:      platform,
		ShopDomain:    req.ShopDomain,
		MarketplaceID: req.MarketplaceID,
		Name:          req.Name,
		Email:         req.Email,
	}, req.Code)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, dto.NewSellerResponse(seller))
}

// RefreshToken forces a credential refresh regardless of cached expiry
func (h *SellerHandler) RefreshToken(c *gin.Context) {
	sellerID := c.Param("id")
	if sellerID == "" {
		h.BadRequest(c, "seller id is required")
		return
	}

	creds, err := h.credentials.ForceRefresh(c.Request.Context(), sellerID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.RefreshTokenResponse{
		SellerID:             creds.SellerID,
		AccessTokenExpiresAt: creds.ExpiresAt,
	})
}

// GetTokenMetadata returns a seller's credential state without secrets
func (h *SellerHandler) GetTokenMetadata(c *gin.Context) {
	sellerID := c.Param("id")
	if sellerID == "" {
		h.BadRequest(c, "seller id is required")
		return
	}

	meta, err := h.credentials.GetTokenMetadata(c.Request.Context(), sellerID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, dto.TokenMetadataResponse{
		SellerID:              meta.SellerID,
		Platform:              meta.Platform.String(),
		Status:                meta.Status.String(),
		HasRefreshToken:       meta.HasRefreshToken,
		AccessTokenExpiresAt:  meta.AccessTokenExpiresAt,
		LastTokenRefreshAt:    meta.LastTokenRefreshAt,
		LastTokenRefreshError: meta.LastTokenRefreshError,
	})
}
