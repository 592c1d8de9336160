package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/vberkoz/kvgate/pkg/api"
	"github.com/vberkoz/kvgate/pkg/auth"
	"github.com/vberkoz/kvgate/pkg/cache"
	"github.com/vberkoz/kvgate/pkg/config"
	"github.com/vberkoz/kvgate/pkg/credentials"
	"github.com/vberkoz/kvgate/pkg/middleware"
	"github.com/vberkoz/kvgate/pkg/namespaces"
	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/plans"
	"github.com/vberkoz/kvgate/pkg/ratelimit"
	"github.com/vberkoz/kvgate/pkg/store"
	"github.com/vberkoz/kvgate/pkg/tenants"
	"github.com/vberkoz/kvgate/pkg/usage"
	"github.com/vberkoz/kvgate/pkg/webhooks"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("store initialization failed")
		os.Exit(1)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	var redisClient *redis.Client
	var limiter ratelimit.Limiter
	if cfg.Redis.URL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.Redis.FailOpen, logger)
		logger.WithField("addr", cfg.Redis.URL).Info("using redis rate limiter")
	} else {
		local := ratelimit.NewLocalLimiter()
		local.StartCleanup(ctx, time.Minute)
		limiter = local
		logger.Info("using in-process rate limiter")
	}

	tenantSvc := tenants.NewService(st)
	credentialSvc := credentials.NewService(st)
	namespaceSvc := namespaces.NewService(st)

	var notifier usage.Notifier = &usage.LogNotifier{Logger: logger}
	if cfg.Usage.WebhookURL != "" {
		sender := webhooks.NewSender(cfg.Usage.WebhookURL, cfg.Usage.WebhookSecret, logger)
		notifier = webhooks.NewThresholdNotifier(sender)
		logger.WithField("url", cfg.Usage.WebhookURL).Info("usage alerts delivered by webhook")
	}
	meter := usage.NewMeter(st, notifier, logger, metrics)
	meter.SetAlertThreshold(cfg.Usage.AlertThresholdPercent)

	planCache := cache.New[plans.Tier]("tenant-plans", cfg.Auth.PlanCacheSize, cfg.Auth.PlanCacheTTL, metrics)
	apiKeyVerifier := auth.NewAPIKeyVerifier(credentialSvc, tenantSvc, planCache, logger, metrics)

	var bearerVerifier *auth.BearerVerifier
	if cfg.Auth.OIDCIssuerURL != "" {
		tokens, err := auth.NewOIDCVerifier(ctx, auth.OIDCConfig{
			IssuerURL: cfg.Auth.OIDCIssuerURL,
			ClientID:  cfg.Auth.OIDCClientID,
		})
		if err != nil {
			logger.WithError(err).Error("OIDC discovery failed")
			os.Exit(1)
		}
		bearerVerifier = auth.NewBearerVerifier(tokens, tenantSvc, logger, metrics)
	} else {
		logger.Warn("bearer authentication disabled: no OIDC issuer configured")
	}

	server := api.NewServer(api.Deps{
		Credentials: credentialSvc,
		Namespaces:  namespaceSvc,
		Tenants:     tenantSvc,
		Meter:       meter,
		Authn:       middleware.NewAuthenticator(apiKeyVerifier, bearerVerifier),
		Limiter:     limiter,
		Logger:      logger,
		Metrics:     metrics,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(st, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("starting API server")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("starting health server")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		err := apiServer.Shutdown(shutdownCtx)
		if herr := healthServer.Shutdown(shutdownCtx); err == nil {
			err = herr
		}
		return err
	})

	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Type == "dynamodb" {
		return store.NewDynamoStore(ctx, cfg.Store.Dynamo)
	}
	return store.NewMemoryStore(), nil
}
