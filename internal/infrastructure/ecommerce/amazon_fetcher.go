package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/reviewsync/backend/internal/domain/ingestion"
)

// AmazonReviewFetcher retrieves raw review pages from the Selling Partner
// reviews API.
type AmazonReviewFetcher struct {
	config     *AmazonConfig
	httpClient *http.Client
	signer     *amazonRequestSigner
}

// NewAmazonReviewFetcher creates an Amazon review fetcher. Requests are
// SigV4-signed when the config carries an IAM key pair.
func NewAmazonReviewFetcher(config *AmazonConfig) (*AmazonReviewFetcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	f := &AmazonReviewFetcher{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}
	if config.AWSAccessKeyID != "" && config.AWSSecretAccessKey != "" {
		f.signer = newAmazonRequestSigner(
			config.AWSAccessKeyID, config.AWSSecretAccessKey, config.AWSSessionToken)
	}
	return f, nil
}

// PlatformCode returns the platform this fetcher handles
func (f *AmazonReviewFetcher) PlatformCode() ingestion.PlatformCode {
	return ingestion.PlatformAmazon
}

// FetchPage retrieves one page of reviews for an ASIN. The raw body is
// returned untouched; only the pagination token is extracted from it.
func (f *AmazonReviewFetcher) FetchPage(ctx context.Context, creds ingestion.Credentials, params ingestion.FetchParams) (*ingestion.RawPage, error) {
	pageSize := params.PageSize
	if pageSize <= 0 || pageSize > amazonMaxPageSize {
		pageSize = f.config.PageSize
	}

	endpoint := fmt.Sprintf("%s/reviews/v1/items/%s/reviews",
		f.config.APIBase(creds.Region), url.PathEscape(params.ItemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, ingestion.NewTransportError(ingestion.PlatformAmazon,
			fmt.Errorf("amazon: failed to create request: %w", err))
	}

	q := req.URL.Query()
	q.Set("marketplaceIds", creds.MarketplaceID)
	q.Set("pageSize", strconv.Itoa(pageSize))
	if params.PageToken != "" {
		q.Set("nextToken", params.PageToken)
	}
	req.URL.RawQuery = q.Encode()

	req.Header.Set("x-amz-access-token", creds.AccessToken)
	req.Header.Set("Accept", "application/json")

	if f.signer != nil {
		if err := f.signer.Sign(ctx, req, creds.Region); err != nil {
			return nil, ingestion.NewTransportError(ingestion.PlatformAmazon,
				fmt.Errorf("amazon: failed to sign request: %w", err))
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, ingestion.NewTransportError(ingestion.PlatformAmazon, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, ingestion.NewTransportError(ingestion.PlatformAmazon,
			fmt.Errorf("amazon: failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ingestion.NewFetchError(ingestion.PlatformAmazon, resp.StatusCode,
			parseRetryAfter(resp.Header.Get("Retry-After")),
			fmt.Errorf("amazon: %s", apiErrorSummary(body)))
	}

	var envelope AmazonReviewsResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, ingestion.NewFetchError(ingestion.PlatformAmazon, http.StatusOK, 0,
			fmt.Errorf("amazon: unparseable page body: %w", err))
	}

	page := &ingestion.RawPage{Body: body}
	if envelope.Payload != nil {
		page.NextToken = envelope.Payload.NextToken
	}
	return page, nil
}

// parseRetryAfter reads a Retry-After header in delta-seconds form
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// apiErrorSummary extracts the first API error message from a failed body
func apiErrorSummary(body []byte) string {
	var envelope AmazonReviewsResponse
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Errors) > 0 {
		return fmt.Sprintf("%s: %s", envelope.Errors[0].Code, envelope.Errors[0].Message)
	}
	return "request failed"
}
