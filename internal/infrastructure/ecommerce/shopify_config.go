package ecommerce

import (
	"errors"
	"fmt"
	"regexp"
)

// ShopifyConfig holds configuration for the Shopify OAuth flow and the
// per-shop Admin API.
type ShopifyConfig struct {
	// ClientID is the Shopify app API key
	ClientID string
	// ClientSecret is the Shopify app secret
	ClientSecret string
	// RedirectURL is the registered OAuth callback
	RedirectURL string
	// APIVersion selects the Admin API version (e.g. 2024-07)
	APIVersion string
	// Scopes are the access scopes requested during install
	Scopes []string
	// PageSize is the review page size requested from the API
	PageSize int
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

const (
	// ShopifyDefaultAPIVersion is the Admin API version used when none is
	// configured
	ShopifyDefaultAPIVersion = "2024-07"
	// shopifyMaxPageSize is the Admin API's hard page size cap
	shopifyMaxPageSize = 250
)

// Errors for Shopify configuration
var (
	ErrShopifyConfigMissingClientID     = errors.New("shopify: client id is required")
	ErrShopifyConfigMissingClientSecret = errors.New("shopify: client secret is required")
	ErrShopifyInvalidShopDomain         = errors.New("shopify: invalid shop domain")
)

// shopDomainPattern matches myshopify.com shop domains
var shopDomainPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*\.myshopify\.com$`)

// NewShopifyConfig creates a Shopify configuration with defaults
func NewShopifyConfig(clientID, clientSecret string) *ShopifyConfig {
	return &ShopifyConfig{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		APIVersion:     ShopifyDefaultAPIVersion,
		Scopes:         []string{"read_products", "read_orders"},
		PageSize:       50,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Shopify configuration, filling defaults
func (c *ShopifyConfig) Validate() error {
	if c.ClientID == "" {
		return ErrShopifyConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrShopifyConfigMissingClientSecret
	}
	if c.APIVersion == "" {
		c.APIVersion = ShopifyDefaultAPIVersion
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"read_products", "read_orders"}
	}
	if c.PageSize <= 0 || c.PageSize > shopifyMaxPageSize {
		c.PageSize = 50
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// ValidateShopDomain rejects anything that is not a myshopify.com domain.
// Shop domains end up in request URLs, so this is an SSRF guard as much as
// an input check.
func ValidateShopDomain(domain string) error {
	if !shopDomainPattern.MatchString(domain) {
		return fmt.Errorf("%w: %q", ErrShopifyInvalidShopDomain, domain)
	}
	return nil
}
