package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/checkout"
	"github.com/noah-isme/toko-storefront/internal/commerce"
	"github.com/noah-isme/toko-storefront/internal/config"
	"github.com/noah-isme/toko-storefront/internal/health"
	"github.com/noah-isme/toko-storefront/internal/lock"
	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/ratelimit"
	"github.com/noah-isme/toko-storefront/internal/resilience"
	"github.com/noah-isme/toko-storefront/internal/storage"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	if cfg.Obs.EnablePrometheus {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
		resilience.RegisterMetrics(cfg.Obs.MetricsNamespace, nil)
	}

	tracingEnabled := cfg.Obs.EnableTracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "toko-storefront",
			ServiceVersion: version,
			Endpoint:       cfg.Obs.OTLPEndpoint,
			SamplingRatio:  cfg.Obs.TracingSamplingRatio,
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if cfg.Obs.EnablePrometheus {
			if err := redisotel.InstrumentMetrics(redisClient); err != nil {
				logger.Error().Err(err).Msg("instrument redis metrics")
			}
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	backend, closeBackend, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.StorageBackend,
		Dir:         cfg.StorageDir,
		TTL:         cfg.StorageTTL,
		Prefix:      "storefront:",
		Redis:       redisClient,
		DatabaseURL: cfg.DatabaseURL,
	})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("open storage")
	}
	defer closeBackend()

	sealed, err := storage.NewEncrypted(backend, cfg.Secret(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init storage encryption")
	}
	if cfg.IsDevelopment() && cfg.EncryptionKey == "" {
		logger.Warn().Msg("ENCRYPTION_KEY not set; using development secret")
	}

	breaker := resilience.NewBreaker(10, 0.5, 30*time.Second).WithTarget("commerce").WithLogger(logger)
	client, err := commerce.NewClient(commerce.Options{
		BaseURL:     cfg.CommerceAPIURL,
		Timeout:     cfg.CommerceTimeout,
		MaxAttempts: cfg.CommerceMaxAttempts,
		Breaker:     breaker,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init commerce client")
	}

	var catalogCache *catalog.Cache
	if redisClient != nil {
		catalogCache = catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
	}
	catalogSvc, err := catalog.NewService(catalog.ServiceConfig{
		Source:       client,
		Cache:        catalogCache,
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init catalog service")
	}

	registry := cart.NewRegistry(sealed, cfg.CartVariant, logger)
	registry.Lock = &lock.Local{}
	if redisClient != nil {
		registry.Lock = lock.Redis{Client: redisClient, Prefix: "storefront:"}
	}

	var submitter checkout.Submitter = checkout.LogSubmitter{Logger: logger}
	if cfg.CheckoutSubmit == "remote" {
		submitter = checkout.RemoteSubmitter{Client: client}
	}
	checkoutSvc := checkout.NewService(submitter, logger)

	cartLimiter, err := ratelimit.NewFixed(redisClient, "ratelimit:")
	if err != nil {
		logger.Fatal().Err(err).Msg("init rate limiter")
	}
	var checkoutLimiter ratelimit.Limiter = cartLimiter
	if redisClient != nil {
		checkoutLimiter = ratelimit.Sliding{Client: redisClient, Prefix: "ratelimit:checkout:"}
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.EnablePrometheus {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.HTTPDurationBucketsMs), nil)
	}

	router := newRouter(routerDeps{
		Config:          cfg,
		Logger:          logger,
		HTTPMetrics:     httpMetrics,
		Tracing:         tracingEnabled,
		Cart:            &cart.Handler{Registry: registry, Logger: logger},
		Catalog:         catalog.NewHandler(catalog.HandlerConfig{Service: catalogSvc}),
		Checkout:        &checkout.Handler{Svc: checkoutSvc, Registry: registry, Logger: logger},
		Health:          health.Handler{Checker: readinessChecker{storage: sealed, commerce: client}},
		CartLimiter:     cartLimiter,
		CheckoutLimiter: checkoutLimiter,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serve(srv, logger)
}

func serve(srv *http.Server, logger zerolog.Logger) {
	stop, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-stop.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("server draining")
	ctx, done := context.WithTimeout(context.Background(), 20*time.Second)
	defer done()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
}

type readinessChecker struct {
	storage  storage.Adapter
	commerce *commerce.Client
}

func (c readinessChecker) PingStorage(ctx context.Context) error {
	if c.storage == nil {
		return errors.New("storage not configured")
	}
	return c.storage.Ping(ctx)
}

func (c readinessChecker) PingCommerce(ctx context.Context) error {
	if c.commerce == nil {
		return errors.New("commerce api not configured")
	}
	return c.commerce.Ping(ctx)
}
