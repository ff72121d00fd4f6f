package ecommerce

import "errors"

// AmazonConfig holds configuration for the Amazon LWA OAuth flow and the
// Selling Partner reviews API.
type AmazonConfig struct {
	// ClientID is the LWA application client id
	ClientID string
	// ClientSecret is the LWA application client secret
	ClientSecret string
	// TokenURL is the LWA token endpoint
	TokenURL string
	// AuthorizeURL is the seller consent page
	AuthorizeURL string
	// RedirectURL is the registered OAuth callback
	RedirectURL string
	// APIBaseNA / APIBaseEU / APIBaseFE are the per-region API hosts
	APIBaseNA string
	APIBaseEU string
	APIBaseFE string
	// PageSize is the review page size requested from the API
	PageSize int
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// AWSAccessKeyID / AWSSecretAccessKey / AWSSessionToken are the IAM
	// credentials used to SigV4-sign SP-API requests. Signing is skipped
	// when no key pair is configured.
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string
}

const (
	// AmazonTokenURL is the production LWA token endpoint
	AmazonTokenURL = "https://api.amazon.com/auth/o2/token"
	// AmazonAuthorizeURL is the seller consent page
	AmazonAuthorizeURL = "https://sellercentral.amazon.com/apps/authorize/consent"
	// AmazonAPIBaseNA is the North America API host
	AmazonAPIBaseNA = "https://sellingpartnerapi-na.amazon.com"
	// AmazonAPIBaseEU is the Europe API host
	AmazonAPIBaseEU = "https://sellingpartnerapi-eu.amazon.com"
	// AmazonAPIBaseFE is the Far East API host
	AmazonAPIBaseFE = "https://sellingpartnerapi-fe.amazon.com"
	// amazonMaxPageSize is the API's hard page size cap
	amazonMaxPageSize = 100
)

// Errors for Amazon configuration
var (
	ErrAmazonConfigMissingClientID     = errors.New("amazon: client id is required")
	ErrAmazonConfigMissingClientSecret = errors.New("amazon: client secret is required")
)

// NewAmazonConfig creates an Amazon configuration with production defaults
func NewAmazonConfig(clientID, clientSecret string) *AmazonConfig {
	return &AmazonConfig{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		TokenURL:       AmazonTokenURL,
		AuthorizeURL:   AmazonAuthorizeURL,
		APIBaseNA:      AmazonAPIBaseNA,
		APIBaseEU:      AmazonAPIBaseEU,
		APIBaseFE:      AmazonAPIBaseFE,
		PageSize:       20,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Amazon configuration, filling endpoint defaults
func (c *AmazonConfig) Validate() error {
	if c.ClientID == "" {
		return ErrAmazonConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrAmazonConfigMissingClientSecret
	}
	if c.TokenURL == "" {
		c.TokenURL = AmazonTokenURL
	}
	if c.AuthorizeURL == "" {
		c.AuthorizeURL = AmazonAuthorizeURL
	}
	if c.APIBaseNA == "" {
		c.APIBaseNA = AmazonAPIBaseNA
	}
	if c.APIBaseEU == "" {
		c.APIBaseEU = AmazonAPIBaseEU
	}
	if c.APIBaseFE == "" {
		c.APIBaseFE = AmazonAPIBaseFE
	}
	if c.PageSize <= 0 || c.PageSize > amazonMaxPageSize {
		c.PageSize = 20
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}

// APIBase returns the API host for a region (na, eu, fe)
func (c *AmazonConfig) APIBase(region string) string {
	switch region {
	case "eu":
		return c.APIBaseEU
	case "fe":
		return c.APIBaseFE
	default:
		return c.APIBaseNA
	}
}
