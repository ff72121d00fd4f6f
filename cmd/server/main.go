package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	ingestionapp "github.com/reviewsync/backend/internal/application/ingestion"
	"github.com/reviewsync/backend/internal/domain/ingestion"
	"github.com/reviewsync/backend/internal/infrastructure/auth"
	"github.com/reviewsync/backend/internal/infrastructure/cache"
	"github.com/reviewsync/backend/internal/infrastructure/config"
	"github.com/reviewsync/backend/internal/infrastructure/crypto"
	"github.com/reviewsync/backend/internal/infrastructure/ecommerce"
	"github.com/reviewsync/backend/internal/infrastructure/logger"
	"github.com/reviewsync/backend/internal/infrastructure/persistence"
	"github.com/reviewsync/backend/internal/infrastructure/ratelimit"
	"github.com/reviewsync/backend/internal/infrastructure/scheduler"
	"github.com/reviewsync/backend/internal/infrastructure/storage"
	"github.com/reviewsync/backend/internal/infrastructure/telemetry"
	"github.com/reviewsync/backend/internal/interfaces/http/handler"
	"github.com/reviewsync/backend/internal/interfaces/http/middleware"
	"github.com/reviewsync/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting ReviewSync Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Telemetry providers (no-op when disabled)
	tracerProvider, err := telemetry.NewTracerProvider(rootCtx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(rootCtx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Database query tracing via otelgorm
	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbTracingCfg := telemetry.DefaultDBTracingConfig()
		dbTracingCfg.Enabled = true
		dbTracing := telemetry.NewDBTracingPlugin(dbTracingCfg, log)
		if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
			log.Warn("Failed to register database tracing", zap.Error(err))
		}
	}

	// Database query and connection pool metrics
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DefaultDBMetricsConfig(), log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(rootCtx)
		defer dbMetrics.Stop()
	}

	// Continuous profiling (no-op when disabled)
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:             cfg.Profiling.Enabled,
		ServerAddress:       cfg.Profiling.ServerAddress,
		ApplicationName:     cfg.Profiling.ApplicationName,
		BasicAuthUser:       cfg.Profiling.BasicAuthUser,
		BasicAuthPassword:   cfg.Profiling.BasicAuthPassword,
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseObjects: true,
		ProfileInuseSpace:   true,
		ProfileGoroutines:   true,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

	// Associate CPU profiles with trace spans when both systems are on
	if cfg.Profiling.Enabled && cfg.Telemetry.Enabled {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}

	// Ingestion metrics with periodic backlog collection
	var ingestionMetrics *telemetry.IngestionMetrics
	if cfg.Telemetry.Enabled {
		ingestionMetrics, err = telemetry.NewIngestionMetrics(telemetry.IngestionMetricsConfig{
			Meter:           meterProvider.Meter("reviewsync-backend"),
			Logger:          log,
			BacklogProvider: telemetry.NewGormBacklogMetricsProvider(db.DB),
		})
		if err != nil {
			log.Warn("Failed to initialize ingestion metrics", zap.Error(err))
			ingestionMetrics = nil
		} else {
			ingestionMetrics.StartPeriodicCollection(rootCtx, time.Minute)
			defer ingestionMetrics.Stop()
		}
	}

	// Initialize repositories
	sellerRepo := persistence.NewGormSellerRepository(db.DB)
	jobRepo := persistence.NewGormFetchJobRepository(db.DB)
	itemRepo := persistence.NewGormItemResultRepository(db.DB)

	// Credential envelope encryption
	cipher, err := crypto.NewEnvelope(cfg.Encryption.MasterKey)
	if err != nil {
		log.Fatal("Failed to initialize credential encryption", zap.Error(err))
	}

	// Platform capability registry
	registry := ecommerce.NewRegistry()
	registerPlatforms(registry, cfg, log)

	// Per-(seller, platform) rate limiting
	limiter := ratelimit.NewManager(cfg.RateLimit)

	// Raw review artifact storage
	var artifactStore storage.ArtifactStore
	if cfg.Storage.Endpoint != "" || cfg.Storage.AccessKeyID != "" || cfg.App.Env == "production" {
		s3Store, err := storage.NewS3ArtifactStore(&cfg.Storage)
		if err != nil {
			log.Fatal("Failed to initialize S3 artifact store", zap.Error(err))
		}
		artifactStore = s3Store
		log.Info("Using S3 artifact store",
			zap.String("bucket", cfg.Storage.Bucket),
			zap.String("region", cfg.Storage.Region),
		)
	} else {
		artifactStore = storage.NewInMemoryArtifactStore()
		log.Warn("Using in-memory artifact store; raw review payloads are not durable")
	}

	// Idempotency store: Redis with in-memory fallback outside production
	idempotencyFactory := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	idempotencyStore, err := idempotencyFactory.CreateStore()
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Application services
	credentialService := ingestionapp.NewCredentialService(
		sellerRepo, registry, cipher, cfg.Credentials.RefreshSafetyMargin, log)
	credentialService.SetMetrics(ingestionMetrics)

	orchestrator := ingestionapp.NewFetchOrchestrator(
		registry, credentialService, limiter, artifactStore, cfg, log)

	// The worker pool executes jobs through the job service, and the job
	// service dispatches accepted jobs back onto the pool. The executor
	// indirection breaks the construction cycle.
	var jobService *ingestionapp.JobService
	pool, err := scheduler.NewJobWorkerPool(
		scheduler.PoolConfigFromJobs(cfg.Jobs),
		scheduler.JobExecutorFunc(func(ctx context.Context, jobID uuid.UUID) error {
			return jobService.Run(ctx, jobID)
		}),
		log,
	)
	if err != nil {
		log.Fatal("Failed to initialize job worker pool", zap.Error(err))
	}

	jobService = ingestionapp.NewJobService(
		jobRepo, itemRepo, sellerRepo, orchestrator, idempotencyStore, pool, cfg.Jobs, log)
	jobService.SetMetrics(ingestionMetrics)

	if err := pool.Start(rootCtx); err != nil {
		log.Fatal("Failed to start job worker pool", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pool.Stop(stopCtx); err != nil {
			log.Error("Error stopping job worker pool", zap.Error(err))
		}
	}()

	// JWT service for the API surface, with a revocation list backed by
	// Redis when available
	jwtService := auth.NewJWTService(cfg.JWT)
	if blacklist, err := auth.NewRedisTokenBlacklist(auth.RedisTokenBlacklistConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}); err != nil {
		log.Warn("Redis unavailable, falling back to in-memory token blacklist", zap.Error(err))
		jwtService.SetBlacklist(auth.NewInMemoryTokenBlacklist())
	} else {
		jwtService.SetBlacklist(blacklist)
	}

	// Initialize handlers
	fetchHandler := handler.NewFetchHandler(jobService)
	sellerHandler := handler.NewSellerHandler(credentialService)
	systemHandler := handler.NewSystemHandler(db)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. BodyLimit - Limit request body size
	// 7. Tracing/metrics - OpenTelemetry spans and HTTP metrics
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Per-client-IP request limiter. The per-seller platform buckets cover
	// outbound fetches; this guards the API surface itself.
	if cfg.HTTP.RateLimitEnabled {
		engine.Use(middleware.RateLimit(
			middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)))
	}

	// Tracing and HTTP metrics (only when telemetry is enabled)
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.TracingAttributeInjector())
		engine.Use(middleware.HTTPMetricsWithMeter(
			meterProvider.Meter("reviewsync-backend"), true))
	}

	// Pyroscope labels per request (only when the profiler is running)
	if cfg.Profiling.Enabled {
		engine.Use(middleware.ProfilingWithConfig(middleware.DefaultProfilingConfig()))
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Apply JWT authentication middleware to API routes
	// Configure skip paths for public endpoints
	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/health",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		SkipPathPrefixes: []string{
			// OAuth consent round-trips arrive without an API token
			"/api/v1/auth/",
		},
		Logger: log,
	}
	engine.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(systemHandler).
		Register(fetchHandler).
		Register(sellerHandler)
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// registerPlatforms installs the capability bundle for every platform whose
// OAuth client is configured. A platform without credentials stays
// unregistered and submissions for it fail with an unknown-platform error.
func registerPlatforms(registry *ecommerce.Registry, cfg *config.Config, log *zap.Logger) {
	if cfg.Amazon.ClientID != "" {
		if err := registerAmazon(registry, amazonConfigFrom(&cfg.Amazon)); err != nil {
			log.Fatal("Failed to register Amazon platform", zap.Error(err))
		}
		log.Info("Registered platform", zap.String("platform", ingestion.PlatformAmazon.String()))
	} else {
		log.Warn("Amazon OAuth client not configured; platform disabled")
	}

	if cfg.Shopify.ClientID != "" {
		if err := registerShopify(registry, shopifyConfigFrom(&cfg.Shopify)); err != nil {
			log.Fatal("Failed to register Shopify platform", zap.Error(err))
		}
		log.Info("Registered platform", zap.String("platform", ingestion.PlatformShopify.String()))
	} else {
		log.Warn("Shopify OAuth client not configured; platform disabled")
	}
}

// amazonConfigFrom builds the adapter configuration, overriding production
// defaults with any configured values.
func amazonConfigFrom(cfg *config.AmazonConfig) *ecommerce.AmazonConfig {
	out := ecommerce.NewAmazonConfig(cfg.ClientID, cfg.ClientSecret)
	out.RedirectURL = cfg.RedirectURL
	if cfg.TokenURL != "" {
		out.TokenURL = cfg.TokenURL
	}
	if cfg.APIBaseNA != "" {
		out.APIBaseNA = cfg.APIBaseNA
	}
	if cfg.APIBaseEU != "" {
		out.APIBaseEU = cfg.APIBaseEU
	}
	if cfg.APIBaseFE != "" {
		out.APIBaseFE = cfg.APIBaseFE
	}
	if cfg.PageSize > 0 {
		out.PageSize = cfg.PageSize
	}
	out.AWSAccessKeyID = cfg.AWSAccessKeyID
	out.AWSSecretAccessKey = cfg.AWSSecretAccessKey
	out.AWSSessionToken = cfg.AWSSessionToken
	return out
}

func shopifyConfigFrom(cfg *config.ShopifyConfig) *ecommerce.ShopifyConfig {
	out := ecommerce.NewShopifyConfig(cfg.ClientID, cfg.ClientSecret)
	out.RedirectURL = cfg.RedirectURL
	if cfg.APIVersion != "" {
		out.APIVersion = cfg.APIVersion
	}
	if len(cfg.Scopes) > 0 {
		out.Scopes = cfg.Scopes
	}
	if cfg.PageSize > 0 {
		out.PageSize = cfg.PageSize
	}
	return out
}

func registerAmazon(registry *ecommerce.Registry, cfg *ecommerce.AmazonConfig) error {
	authClient, err := ecommerce.NewAmazonAuthClient(cfg)
	if err != nil {
		return err
	}
	fetcher, err := ecommerce.NewAmazonReviewFetcher(cfg)
	if err != nil {
		return err
	}
	return registry.Register(ingestion.PlatformAmazon, &ingestion.CapabilityBundle{
		Auth:       authClient,
		Fetcher:    fetcher,
		Normalizer: ecommerce.NewAmazonReviewNormalizer(),
	})
}

func registerShopify(registry *ecommerce.Registry, cfg *ecommerce.ShopifyConfig) error {
	authClient, err := ecommerce.NewShopifyAuthClient(cfg)
	if err != nil {
		return err
	}
	fetcher, err := ecommerce.NewShopifyReviewFetcher(cfg)
	if err != nil {
		return err
	}
	return registry.Register(ingestion.PlatformShopify, &ingestion.CapabilityBundle{
		Auth:       authClient,
		Fetcher:    fetcher,
		Normalizer: ecommerce.NewShopifyReviewNormalizer(),
	})
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
