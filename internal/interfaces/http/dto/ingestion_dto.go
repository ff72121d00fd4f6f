package dto

import (
	"time"

	"github.com/reviewsync/backend/internal/domain/ingestion"
)

// SubmitFetchRequest is the body of a review fetch submission
type SubmitFetchRequest struct {
	SellerID       string   `json:"seller_id" binding:"required"`
	ItemIDs        []string `json:"item_ids" binding:"required,min=1"`
	RequestedBy    string   `json:"requested_by"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// JobAcceptedResponse is returned when a fetch job is accepted
type JobAcceptedResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Existing bool   `json:"existing,omitempty"`
}

// JobResponse represents one fetch job
type JobResponse struct {
	JobID               string     `json:"job_id"`
	Platform            string     `json:"platform"`
	SellerID            string     `json:"seller_id"`
	ItemIDs             []string   `json:"item_ids"`
	Status              string     `json:"status"`
	TotalItems          int        `json:"total_items"`
	CompletedItems      int        `json:"completed_items"`
	FailedItems         int        `json:"failed_items"`
	ReviewsFetchedTotal int        `json:"reviews_fetched_total"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	RequestedBy         string     `json:"requested_by,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// NewJobResponse converts a fetch job to its API representation
func NewJobResponse(job *ingestion.FetchJob) JobResponse {
	return JobResponse{
		JobID:               job.ID.String(),
		Platform:            job.Platform.String(),
		SellerID:            job.SellerID,
		ItemIDs:             job.ItemIDs,
		Status:              job.Status.String(),
		TotalItems:          job.TotalItems,
		CompletedItems:      job.CompletedItems,
		FailedItems:         job.FailedItems,
		ReviewsFetchedTotal: job.ReviewsFetchedTotal,
		ErrorMessage:        job.ErrorMessage,
		RequestedBy:         job.RequestedBy,
		CreatedAt:           job.CreatedAt,
		StartedAt:           job.StartedAt,
		CompletedAt:         job.CompletedAt,
	}
}

// JobStatusResponse is a job with the object keys its items produced
type JobStatusResponse struct {
	JobResponse
	RawKeys       []string `json:"raw_keys"`
	ProcessedKeys []string `json:"processed_keys"`
}

// ItemResultResponse represents one item's fetch outcome
type ItemResultResponse struct {
	ItemID       string     `json:"item_id"`
	Position     int        `json:"position"`
	Status       string     `json:"status"`
	ReviewsCount int        `json:"reviews_count"`
	PagesFetched int        `json:"pages_fetched"`
	RawKeys      []string   `json:"raw_keys,omitempty"`
	ProcessedKey string     `json:"processed_key,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewItemResultResponse converts an item result to its API representation
func NewItemResultResponse(row *ingestion.ItemFetchResult) ItemResultResponse {
	return ItemResultResponse{
		ItemID:       row.ItemID,
		Position:     row.Position,
		Status:       row.Status.String(),
		ReviewsCount: row.ReviewsCount,
		PagesFetched: row.PagesFetched,
		RawKeys:      row.RawKeys,
		ProcessedKey: row.ProcessedKey,
		ErrorMessage: row.ErrorMessage,
		StartedAt:    row.StartedAt,
		CompletedAt:  row.CompletedAt,
	}
}

// AuthStartRequest carries the query parameters of an authorization start
type AuthStartRequest struct {
	ShopDomain string `form:"shop_domain"`
	State      string `form:"state" binding:"required"`
}

// AuthStartResponse returns the provider consent URL
type AuthStartResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// AuthCallbackRequest is the body of an OAuth callback completion
type AuthCallbackRequest struct {
	SellerID      string `json:"seller_id" binding:"required"`
	Code          string `json:"code" binding:"required"`
	State         string `json:"state"`
	ShopDomain    string `json:"shop_domain"`
	MarketplaceID string `json:"marketplace_id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
}

// SellerResponse represents an authorized seller
type SellerResponse struct {
	SellerID      string    `json:"seller_id"`
	Platform      string    `json:"platform"`
	Status        string    `json:"status"`
	ShopDomain    string    `json:"shop_domain,omitempty"`
	MarketplaceID string    `json:"marketplace_id,omitempty"`
	Name          string    `json:"name,omitempty"`
	Email         string    `json:"email,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewSellerResponse converts a seller to its API representation
func NewSellerResponse(seller *ingestion.Seller) SellerResponse {
	return SellerResponse{
		SellerID:      seller.ID,
		Platform:      seller.Platform.String(),
		Status:        seller.Status.String(),
		ShopDomain:    seller.ShopDomain,
		MarketplaceID: seller.MarketplaceID,
		Name:          seller.Name,
		Email:         seller.Email,
		CreatedAt:     seller.CreatedAt,
		UpdatedAt:     seller.UpdatedAt,
	}
}

// TokenMetadataResponse is the non-secret credential state of a seller
type TokenMetadataResponse struct {
	SellerID              string     `json:"seller_id"`
	Platform              string     `json:"platform"`
	Status                string     `json:"status"`
	HasRefreshToken       bool       `json:"has_refresh_token"`
	AccessTokenExpiresAt  *time.Time `json:"access_token_expires_at,omitempty"`
	LastTokenRefreshAt    *time.Time `json:"last_token_refresh_at,omitempty"`
	LastTokenRefreshError string     `json:"last_token_refresh_error,omitempty"`
}

// RefreshTokenResponse is returned after a forced credential refresh
type RefreshTokenResponse struct {
	SellerID             string    `json:"seller_id"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
}
