package ecommerce

// amazonTokenResponse is the LWA token endpoint response
type amazonTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// amazonTokenError is the LWA token endpoint error response
type amazonTokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// AmazonReviewsResponse is the reviews API page envelope
type AmazonReviewsResponse struct {
	Payload *AmazonReviewsPayload `json:"payload"`
	Errors  []AmazonAPIError      `json:"errors,omitempty"`
}

// AmazonReviewsPayload carries one page of reviews plus the pagination token
type AmazonReviewsPayload struct {
	Reviews   []AmazonReview `json:"reviews"`
	NextToken string         `json:"nextToken,omitempty"`
}

// AmazonReview is a single review as returned by the API
type AmazonReview struct {
	ReviewID         string `json:"reviewId"`
	Asin             string `json:"asin"`
	ReviewerName     string `json:"reviewerName"`
	Rating           int    `json:"rating"`
	Title            string `json:"title"`
	Content          string `json:"content"`
	VerifiedPurchase bool   `json:"verifiedPurchase"`
	HelpfulVotes     int    `json:"helpfulVotes"`
	Language         string `json:"languageCode,omitempty"`
	ReviewDate       string `json:"reviewDate"`
}

// AmazonAPIError is the API error entry
type AmazonAPIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
