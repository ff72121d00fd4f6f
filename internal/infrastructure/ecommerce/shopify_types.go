package ecommerce

// shopifyTokenResponse is the OAuth token exchange response
type shopifyTokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

// ShopifyReviewsResponse is the reviews API page envelope
type ShopifyReviewsResponse struct {
	Reviews []ShopifyReview `json:"reviews"`
}

// ShopifyReview is a single review as returned by the API
type ShopifyReview struct {
	ID            int64  `json:"id"`
	ProductID     int64  `json:"product_id"`
	Author        string `json:"author"`
	Rating        int    `json:"rating"`
	Title         string `json:"title"`
	Body          string `json:"body"`
	VerifiedBuyer bool   `json:"verified_buyer"`
	UpvotesCount  int    `json:"upvotes_count"`
	Locale        string `json:"locale,omitempty"`
	CreatedAt     string `json:"created_at"`
	PublishedAt   string `json:"published_at,omitempty"`
}

// shopifyAPIError is the Admin API error body
type shopifyAPIError struct {
	Errors interface{} `json:"errors"`
}
