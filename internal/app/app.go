// Package app wires the gateway's infrastructure (database, Redis, task
// queues, dispatcher, webhooks, pairing) to its HTTP surface and starts the
// selected runtime mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/edierwan/getouch-sub000/internal/adminapi"
	"github.com/edierwan/getouch-sub000/internal/audit"
	"github.com/edierwan/getouch-sub000/internal/auth"
	"github.com/edierwan/getouch-sub000/internal/config"
	"github.com/edierwan/getouch-sub000/internal/dispatcher"
	"github.com/edierwan/getouch-sub000/internal/httpapi"
	"github.com/edierwan/getouch-sub000/internal/httpserver"
	"github.com/edierwan/getouch-sub000/internal/pairing"
	"github.com/edierwan/getouch-sub000/internal/platform"
	"github.com/edierwan/getouch-sub000/internal/router"
	"github.com/edierwan/getouch-sub000/internal/store"
	"github.com/edierwan/getouch-sub000/internal/taskqueue"
	"github.com/edierwan/getouch-sub000/internal/telemetry"
	"github.com/edierwan/getouch-sub000/internal/webhook"
)

// Run reads configuration, connects to infrastructure, and starts the mode
// selected by cfg.Mode: "api" (HTTP surface), "dispatcher" (background
// worker loop), or "migrate" (schema migrations only, then exit).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting gateway", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	if cfg.Mode == "migrate" {
		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL, platform.RedisOptions{
		PoolSize:    cfg.RedisPoolSize,
		MinIdleConn: cfg.RedisMinIdleConn,
		DialTimeout: cfg.RedisDialTimeout,
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis client", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "dispatcher":
		return runDispatcher(ctx, cfg, logger, db, rdb)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	st := store.New(db, logger)

	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	touchQueue := taskqueue.New("apikey_touch", cfg.TaskQueueBufferSize, logger)
	touchQueue.Start(ctx, 2)
	defer touchQueue.Close()

	webhookQueue := taskqueue.New("webhook_delivery", cfg.TaskQueueBufferSize, logger)
	webhookQueue.Start(ctx, cfg.WebhookWorkerConcurrency)
	defer webhookQueue.Close()

	rateLimiter := auth.NewRateLimiter(rdb)
	tenantAuth := auth.NewTenantAuthenticator(st, logger, rateLimiter, touchQueue)
	deviceAuth := auth.NewDeviceAuthenticator(st, logger, cfg.DeviceClockSkew)
	adminAuth := auth.NewAdminAuthenticator(logger, cfg.AdminToken, cfg.AdminTrustAccessHeader, cfg.AdminTrustedAccessHeader, cfg.AdminSessionCookieName)

	var internalAuth *auth.InternalSecretAuthenticator
	if cfg.InternalSharedSecret != "" {
		internalAuth = auth.NewInternalSecretAuthenticator(cfg.InternalSharedSecret, logger)
	}

	pairingSvc := pairing.New(st)
	webhooks := webhook.NewDispatcher(st, logger, cfg.WebhookTimeout, webhookQueue, cfg.WebhookWorkerConcurrency)

	sweeper := router.NewStaleSweeper(st, logger, cfg.StaleDeviceThreshold, cfg.StaleSweepInterval)
	go sweeper.Run(ctx)

	disp := dispatcher.New(st, logger, webhooks, rdb, dispatcher.Config{
		PollInterval:             cfg.DispatchPollInterval,
		BatchSize:                cfg.DispatchBatchSize,
		StaleProcessingThreshold: cfg.StaleProcessingThreshold,
		AdapterBaseURL:           cfg.AdapterBaseURL,
		AdapterTimeout:           cfg.AdapterTimeout,
		PushModeEnabled:          cfg.PushModeEnabled,
	})
	go disp.Run(ctx)

	r := httpserver.NewRouter(logger, cfg.CORSAllowedOrigins)
	r.Handle(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	tenantAPI := httpapi.NewTenantAPI(st, logger, cfg.MessageMaxAttempts, rdb)
	deviceAPI := httpapi.NewDeviceAPI(st, logger, pairingSvc, webhooks, cfg.DispatchBatchSize, cfg.PollIntervalHint, cfg.DefaultTenantSlug)
	httpapi.Mount(r, tenantAPI, deviceAPI, tenantAuth, deviceAuth, internalAuth)

	adminAPI := adminapi.New(st, logger, auditWriter, cfg.DefaultAPIKeyRPM)
	adminapi.Mount(r, adminAPI, adminAuth, adminapi.PairingConfig{
		Service:       pairingSvc,
		PublicBaseURL: cfg.PublicBaseURL,
		MinTTL:        cfg.PairCodeMinTTL,
		MaxTTL:        cfg.PairCodeMaxTTL,
		DefaultTTL:    cfg.PairCodeDefaultTTL,
	}, adminapi.WebhookConfig{
		DefaultMaxRetries: cfg.WebhookDefaultMaxRetries,
		DefaultBackoffMS:  cfg.WebhookDefaultBackoffMS,
	})
	adminapi.MountHealth(r, adminAPI, adminapi.HealthThresholds{
		QueueDepthMax:           cfg.HealthQueueDepthMax,
		FailureCountMax:         cfg.HealthFailureCountMax,
		HeartbeatStaleThreshold: 2 * cfg.StaleDeviceThreshold,
	})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func runDispatcher(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	st := store.New(db, logger)

	webhookQueue := taskqueue.New("webhook_delivery", cfg.TaskQueueBufferSize, logger)
	webhookQueue.Start(ctx, cfg.WebhookWorkerConcurrency)
	defer webhookQueue.Close()

	webhooks := webhook.NewDispatcher(st, logger, cfg.WebhookTimeout, webhookQueue, cfg.WebhookWorkerConcurrency)

	sweeper := router.NewStaleSweeper(st, logger, cfg.StaleDeviceThreshold, cfg.StaleSweepInterval)
	go sweeper.Run(ctx)

	disp := dispatcher.New(st, logger, webhooks, rdb, dispatcher.Config{
		PollInterval:             cfg.DispatchPollInterval,
		BatchSize:                cfg.DispatchBatchSize,
		StaleProcessingThreshold: cfg.StaleProcessingThreshold,
		AdapterBaseURL:           cfg.AdapterBaseURL,
		AdapterTimeout:           cfg.AdapterTimeout,
		PushModeEnabled:          cfg.PushModeEnabled,
	})
	disp.Run(ctx)
	return nil
}
