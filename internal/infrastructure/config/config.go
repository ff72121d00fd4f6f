package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Encryption  EncryptionConfig
	Storage     StorageConfig
	Credentials CredentialsConfig
	RateLimit   RateLimitConfig
	Retry       RetryConfig
	Jobs        JobsConfig
	Amazon      AmazonConfig
	Shopify     ShopifyConfig
	Telemetry   TelemetryConfig
	Profiling   ProfilingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds JWT settings for the API surface
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	// RateLimitEnabled turns on the per-client-IP request limiter. This is
	// independent of the per-seller platform buckets used by the fetchers.
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// EncryptionConfig holds the envelope encryption master key.
type EncryptionConfig struct {
	// MasterKey is the hex-encoded 32-byte key encryption key
	MasterKey string
}

// StorageConfig holds S3-compatible object storage settings
type StorageConfig struct {
	Endpoint        string // custom endpoint for MinIO / localstack; empty for AWS
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// CredentialsConfig governs access token caching.
type CredentialsConfig struct {
	// RefreshSafetyMargin treats tokens expiring within this window as
	// already expired
	RefreshSafetyMargin time.Duration
}

// RateLimitConfig holds per-platform token bucket settings. Platform
// overrides fall back to the defaults when zero.
type RateLimitConfig struct {
	DefaultRatePerSecond float64
	DefaultBurst         int
	AmazonRatePerSecond  float64
	AmazonBurst          int
	ShopifyRatePerSecond float64
	ShopifyBurst         int
}

// RetryConfig holds transient-failure retry settings for upstream fetches.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// JobsConfig holds fetch job execution settings
type JobsConfig struct {
	// WorkerConcurrency bounds concurrently running jobs
	WorkerConcurrency int
	// ItemConcurrency bounds concurrent items within one job
	ItemConcurrency int
	// JobTimeout bounds one job's total runtime
	JobTimeout time.Duration
	// QueueSize bounds the pending job queue
	QueueSize int
	// IdempotencyTTL is how long a submission key blocks duplicates
	IdempotencyTTL time.Duration
}

// AmazonConfig holds Amazon LWA OAuth and Reviews API settings
type AmazonConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	RedirectURL  string
	// APIBaseURLs maps region (na, eu, fe) to the API host; empty uses
	// built-in endpoints
	APIBaseNA string
	APIBaseEU string
	APIBaseFE string
	PageSize  int
	// AWS IAM credentials for SigV4-signing SP-API requests; signing is
	// skipped when unset
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSSessionToken    string
}

// ShopifyConfig holds Shopify OAuth and Admin API settings
type ShopifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	APIVersion   string
	Scopes       []string
	PageSize     int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	DBTraceEnabled    bool    // Enable database query tracing (otelgorm)
}

// ProfilingConfig holds continuous profiling (Pyroscope) configuration
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string // e.g. "http://pyroscope:4040"
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with REVIEWSYNC_ prefix (e.g., REVIEWSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("REVIEWSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Encryption: EncryptionConfig{
			MasterKey: v.GetString("encryption.master_key"),
		},
		Storage: StorageConfig{
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			Bucket:          v.GetString("storage.bucket"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Credentials: CredentialsConfig{
			RefreshSafetyMargin: v.GetDuration("credentials.refresh_safety_margin"),
		},
		RateLimit: RateLimitConfig{
			DefaultRatePerSecond: v.GetFloat64("rate_limit.default_rate_per_second"),
			DefaultBurst:         v.GetInt("rate_limit.default_burst"),
			AmazonRatePerSecond:  v.GetFloat64("rate_limit.amazon_rate_per_second"),
			AmazonBurst:          v.GetInt("rate_limit.amazon_burst"),
			ShopifyRatePerSecond: v.GetFloat64("rate_limit.shopify_rate_per_second"),
			ShopifyBurst:         v.GetInt("rate_limit.shopify_burst"),
		},
		Retry: RetryConfig{
			MaxAttempts:  v.GetInt("retry.max_attempts"),
			InitialDelay: v.GetDuration("retry.initial_delay"),
			MaxDelay:     v.GetDuration("retry.max_delay"),
		},
		Jobs: JobsConfig{
			WorkerConcurrency: v.GetInt("jobs.worker_concurrency"),
			ItemConcurrency:   v.GetInt("jobs.item_concurrency"),
			JobTimeout:        v.GetDuration("jobs.job_timeout"),
			QueueSize:         v.GetInt("jobs.queue_size"),
			IdempotencyTTL:    v.GetDuration("jobs.idempotency_ttl"),
		},
		Amazon: AmazonConfig{
			ClientID:     v.GetString("amazon.client_id"),
			ClientSecret: v.GetString("amazon.client_secret"),
			TokenURL:     v.GetString("amazon.token_url"),
			RedirectURL:  v.GetString("amazon.redirect_url"),
			APIBaseNA:    v.GetString("amazon.api_base_na"),
			APIBaseEU:    v.GetString("amazon.api_base_eu"),
			APIBaseFE:    v.GetString("amazon.api_base_fe"),
			PageSize:     v.GetInt("amazon.page_size"),

			AWSAccessKeyID:     v.GetString("amazon.aws_access_key_id"),
			AWSSecretAccessKey: v.GetString("amazon.aws_secret_access_key"),
			AWSSessionToken:    v.GetString("amazon.aws_session_token"),
		},
		Shopify: ShopifyConfig{
			ClientID:     v.GetString("shopify.client_id"),
			ClientSecret: v.GetString("shopify.client_secret"),
			RedirectURL:  v.GetString("shopify.redirect_url"),
			APIVersion:   v.GetString("shopify.api_version"),
			Scopes:       v.GetStringSlice("shopify.scopes"),
			PageSize:     v.GetInt("shopify.page_size"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "reviewsync-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "reviewsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 15 * time.Minute
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "reviewsync-backend"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	// NOTE: CORS origins are intentionally not given a default fallback to "*".
	// An empty list means no cross-origin requests are allowed until explicitly configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "Idempotency-Key"}
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 300
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "reviewsync-reviews"
	}
	if cfg.Credentials.RefreshSafetyMargin == 0 {
		cfg.Credentials.RefreshSafetyMargin = 60 * time.Second
	}
	if cfg.RateLimit.DefaultRatePerSecond == 0 {
		cfg.RateLimit.DefaultRatePerSecond = 2
	}
	if cfg.RateLimit.DefaultBurst == 0 {
		cfg.RateLimit.DefaultBurst = 10
	}
	if cfg.RateLimit.AmazonRatePerSecond == 0 {
		cfg.RateLimit.AmazonRatePerSecond = 0.5
	}
	if cfg.RateLimit.AmazonBurst == 0 {
		cfg.RateLimit.AmazonBurst = 5
	}
	if cfg.RateLimit.ShopifyRatePerSecond == 0 {
		cfg.RateLimit.ShopifyRatePerSecond = 2
	}
	if cfg.RateLimit.ShopifyBurst == 0 {
		cfg.RateLimit.ShopifyBurst = 40
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 30 * time.Second
	}
	if cfg.Jobs.WorkerConcurrency == 0 {
		cfg.Jobs.WorkerConcurrency = 3
	}
	if cfg.Jobs.ItemConcurrency == 0 {
		cfg.Jobs.ItemConcurrency = 4
	}
	if cfg.Jobs.JobTimeout == 0 {
		cfg.Jobs.JobTimeout = 30 * time.Minute
	}
	if cfg.Jobs.QueueSize == 0 {
		cfg.Jobs.QueueSize = 100
	}
	if cfg.Jobs.IdempotencyTTL == 0 {
		cfg.Jobs.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Amazon.TokenURL == "" {
		cfg.Amazon.TokenURL = "https://api.amazon.com/auth/o2/token"
	}
	if cfg.Amazon.APIBaseNA == "" {
		cfg.Amazon.APIBaseNA = "https://sellingpartnerapi-na.amazon.com"
	}
	if cfg.Amazon.APIBaseEU == "" {
		cfg.Amazon.APIBaseEU = "https://sellingpartnerapi-eu.amazon.com"
	}
	if cfg.Amazon.APIBaseFE == "" {
		cfg.Amazon.APIBaseFE = "https://sellingpartnerapi-fe.amazon.com"
	}
	if cfg.Amazon.PageSize == 0 {
		cfg.Amazon.PageSize = 20
	}
	if cfg.Shopify.APIVersion == "" {
		cfg.Shopify.APIVersion = "2024-07"
	}
	if len(cfg.Shopify.Scopes) == 0 {
		cfg.Shopify.Scopes = []string{"read_products", "read_orders"}
	}
	if cfg.Shopify.PageSize == 0 {
		cfg.Shopify.PageSize = 50
	}
	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "reviewsync-backend"
	}
	// Note: Insecure defaults to false for safety (TLS enabled by default)
	if cfg.Profiling.ServerAddress == "" {
		cfg.Profiling.ServerAddress = "http://localhost:4040"
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = "reviewsync-backend"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Encryption.MasterKey != "" {
		key, err := hex.DecodeString(c.Encryption.MasterKey)
		if err != nil {
			return fmt.Errorf("encryption.master_key must be hex-encoded: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("encryption.master_key must decode to 32 bytes, got %d", len(key))
		}
	}

	if c.RateLimit.DefaultRatePerSecond < 0 || c.RateLimit.AmazonRatePerSecond < 0 || c.RateLimit.ShopifyRatePerSecond < 0 {
		return fmt.Errorf("rate_limit rates cannot be negative")
	}
	if c.Retry.InitialDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry.initial_delay (%s) cannot exceed retry.max_delay (%s)",
			c.Retry.InitialDelay, c.Retry.MaxDelay)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Encryption.MasterKey == "" {
			return fmt.Errorf("encryption.master_key is required in production")
		}
		// CORS must not use wildcard with credentials
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// BucketFor returns the token bucket parameters for a platform, falling
// back to the defaults when no override is set.
func (c *RateLimitConfig) BucketFor(platform string) (rate float64, burst int) {
	switch platform {
	case "amazon":
		rate, burst = c.AmazonRatePerSecond, c.AmazonBurst
	case "shopify":
		rate, burst = c.ShopifyRatePerSecond, c.ShopifyBurst
	}
	if rate == 0 {
		rate = c.DefaultRatePerSecond
	}
	if burst == 0 {
		burst = c.DefaultBurst
	}
	return rate, burst
}

// APIBase returns the Amazon API host for a region.
func (a *AmazonConfig) APIBase(region string) string {
	switch region {
	case "eu":
		return a.APIBaseEU
	case "fe":
		return a.APIBaseFE
	default:
		return a.APIBaseNA
	}
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
