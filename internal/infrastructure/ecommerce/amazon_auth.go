package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reviewsync/backend/internal/domain/ingestion"
)

// maxResponseSize is the maximum allowed response size from platform APIs (10MB)
const maxResponseSize = 10 * 1024 * 1024

// AmazonAuthClient implements the LWA (Login with Amazon) OAuth flow.
type AmazonAuthClient struct {
	config     *AmazonConfig
	httpClient *http.Client
}

// NewAmazonAuthClient creates an Amazon auth client
func NewAmazonAuthClient(config *AmazonConfig) (*AmazonAuthClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AmazonAuthClient{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// PlatformCode returns the platform this client handles
func (c *AmazonAuthClient) PlatformCode() ingestion.PlatformCode {
	return ingestion.PlatformAmazon
}

// AuthorizationURL returns the Seller Central consent URL for the state
// value. Amazon uses a central consent page, so shopDomain is ignored.
func (c *AmazonAuthClient) AuthorizationURL(_, state string) (string, error) {
	u, err := url.Parse(c.config.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("amazon: invalid authorize url: %w", err)
	}
	q := u.Query()
	q.Set("application_id", c.config.ClientID)
	q.Set("state", state)
	if c.config.RedirectURL != "" {
		q.Set("redirect_uri", c.config.RedirectURL)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode swaps an authorization code for a token pair
func (c *AmazonAuthClient) ExchangeCode(ctx context.Context, _, code string) (*ingestion.TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}
	if c.config.RedirectURL != "" {
		form.Set("redirect_uri", c.config.RedirectURL)
	}
	return c.tokenRequest(ctx, form)
}

// Refresh obtains a new access token from the long-lived refresh secret.
// An invalid_grant response means the seller revoked the authorization and
// is reported as ErrAuthRevoked; everything else is retriable.
func (c *AmazonAuthClient) Refresh(ctx context.Context, _, refreshToken string) (*ingestion.TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}
	return c.tokenRequest(ctx, form)
}

func (c *AmazonAuthClient) tokenRequest(ctx context.Context, form url.Values) (*ingestion.TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ingestion.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var tokenErr amazonTokenError
		_ = json.Unmarshal(body, &tokenErr)
		if tokenErr.Error == "invalid_grant" {
			return nil, fmt.Errorf("%w: %s", ingestion.ErrAuthRevoked, tokenErr.ErrorDescription)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: token endpoint HTTP %d", ingestion.ErrTransientFetch, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: token endpoint HTTP %d (%s)", ingestion.ErrAuthExpired, resp.StatusCode, tokenErr.Error)
	}

	var token amazonTokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("amazon: failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("amazon: token response missing access_token")
	}

	return &ingestion.TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresIn:    token.ExpiresIn,
		Scope:        token.Scope,
	}, nil
}
