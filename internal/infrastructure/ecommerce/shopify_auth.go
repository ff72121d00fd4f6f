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

// shopifyTokenLifetime is the synthetic expiry assigned to Shopify access
// tokens. Offline Shopify tokens do not expire; a finite lifetime keeps the
// credential cache code uniform across platforms and forces a periodic
// validity check against the shop.
const shopifyTokenLifetime = 24 * time.Hour

// ShopifyAuthClient implements the Shopify OAuth install flow. Shopify
// issues a single permanent access token per shop, which doubles as the
// long-lived secret: Refresh revalidates it against the shop instead of
// minting a new one.
type ShopifyAuthClient struct {
	config     *ShopifyConfig
	httpClient *http.Client
}

// NewShopifyAuthClient creates a Shopify auth client
func NewShopifyAuthClient(config *ShopifyConfig) (*ShopifyAuthClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ShopifyAuthClient{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// PlatformCode returns the platform this client handles
func (c *ShopifyAuthClient) PlatformCode() ingestion.PlatformCode {
	return ingestion.PlatformShopify
}

// AuthorizationURL returns the shop's OAuth consent URL for the state value
func (c *ShopifyAuthClient) AuthorizationURL(shopDomain, state string) (string, error) {
	if err := ValidateShopDomain(shopDomain); err != nil {
		return "", err
	}
	u := url.URL{
		Scheme: "https",
		Host:   shopDomain,
		Path:   "/admin/oauth/authorize",
	}
	q := u.Query()
	q.Set("client_id", c.config.ClientID)
	q.Set("scope", strings.Join(c.config.Scopes, ","))
	q.Set("state", state)
	if c.config.RedirectURL != "" {
		q.Set("redirect_uri", c.config.RedirectURL)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode swaps an authorization code for the shop's access token
func (c *ShopifyAuthClient) ExchangeCode(ctx context.Context, shopDomain, code string) (*ingestion.TokenResponse, error) {
	if err := ValidateShopDomain(shopDomain); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]string{
		"client_id":     c.config.ClientID,
		"client_secret": c.config.ClientSecret,
		"code":          code,
	})
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to encode token request: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s/admin/oauth/access_token", shopDomain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ingestion.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: token endpoint HTTP %d", ingestion.ErrTransientFetch, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: token endpoint HTTP %d", ingestion.ErrAuthExpired, resp.StatusCode)
	}

	var token shopifyTokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("shopify: failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("shopify: token response missing access_token")
	}

	return &ingestion.TokenResponse{
		AccessToken:  token.AccessToken,
		RefreshToken: token.AccessToken,
		ExpiresIn:    int(shopifyTokenLifetime.Seconds()),
		Scope:        token.Scope,
	}, nil
}

// Refresh revalidates the stored access token against the shop. A 401 means
// the app was uninstalled, which is a permanent revocation.
func (c *ShopifyAuthClient) Refresh(ctx context.Context, shopDomain, refreshToken string) (*ingestion.TokenResponse, error) {
	if err := ValidateShopDomain(shopDomain); err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("https://%s/admin/api/%s/shop.json", shopDomain, c.config.APIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("shopify: failed to create request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", refreshToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ingestion.ErrTransientFetch, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	switch {
	case resp.StatusCode == http.StatusOK:
		return &ingestion.TokenResponse{
			AccessToken:  refreshToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int(shopifyTokenLifetime.Seconds()),
		}, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: app uninstalled from %s", ingestion.ErrAuthRevoked, shopDomain)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: shop validation HTTP %d", ingestion.ErrTransientFetch, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: shop validation HTTP %d", ingestion.ErrAuthExpired, resp.StatusCode)
	}
}
