package ecommerce

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/reviewsync/backend/internal/domain/ingestion"
)

// linkNextPattern extracts the page_info cursor from a Link header's
// rel="next" entry
var linkNextPattern = regexp.MustCompile(`<[^>]*[?&]page_info=([^&>]+)[^>]*>;\s*rel="next"`)

// ShopifyReviewFetcher retrieves raw review pages from a shop's Admin API.
// Pagination is cursor-based: the next page cursor arrives in the Link
// response header, not the body.
type ShopifyReviewFetcher struct {
	config     *ShopifyConfig
	httpClient *http.Client
}

// NewShopifyReviewFetcher creates a Shopify review fetcher
func NewShopifyReviewFetcher(config *ShopifyConfig) (*ShopifyReviewFetcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ShopifyReviewFetcher{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// PlatformCode returns the platform this fetcher handles
func (f *ShopifyReviewFetcher) PlatformCode() ingestion.PlatformCode {
	return ingestion.PlatformShopify
}

// FetchPage retrieves one page of reviews for a product
func (f *ShopifyReviewFetcher) FetchPage(ctx context.Context, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
	if err := ValidateShopDomain(creds.ShopDomain); err != nil {
		return nil, ingestion.NewFetchError(ingestion.PlatformShopify, http.StatusBadRequest, 0, err)
	}

	pageSize := params.PageSize
	if pageSize <= 0 || pageSize > shopifyMaxPageSize {
		pageSize = f.config.PageSize
	}

	endpoint := fmt.Sprintf("https://%s/admin/api/%s/products/%s/reviews.json",
		creds.ShopDomain, f.config.APIVersion, url.PathEscape(params.ItemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, ingestion.NewTransportError(ingestion.PlatformShopify,
			fmt.Errorf("shopify: failed to create request: %w", err))
	}

	q := req.URL.Query()
	q.Set("limit", strconv.Itoa(pageSize))
	if params.PageToken != "" {
		q.Set("page_info", params.PageToken)
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("X-Shopify-Access-Token", creds.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, ingestion.NewTransportError(ingestion.PlatformShopify, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, ingestion.NewTransportError(ingestion.PlatformShopify,
			fmt.Errorf("shopify: failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ingestion.NewFetchError(ingestion.PlatformShopify, resp.StatusCode,
			parseRetryAfter(resp.Header.Get("Retry-After")),
			fmt.Errorf("shopify: request failed"))
	}

	return &ingestion.RawPage{
		NextToken: nextPageInfo(resp.Header.Get("Link")),
		Body:      body,
	}, nil
}

// nextPageInfo extracts the rel="next" cursor from a Link header
func nextPageInfo(linkHeader string) string {
	m := linkNextPattern.FindStringSubmatch(linkHeader)
	if m == nil {
		return ""
	}
	return m[1]
}
