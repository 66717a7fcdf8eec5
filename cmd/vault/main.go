package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/custody-vault/internal/app"
	"github.com/odyssey-erp/custody-vault/internal/audit"
	audithttp "github.com/odyssey-erp/custody-vault/internal/audit/http"
	"github.com/odyssey-erp/custody-vault/internal/auth"
	"github.com/odyssey-erp/custody-vault/internal/custody"
	"github.com/odyssey-erp/custody-vault/internal/observability"
	"github.com/odyssey-erp/custody-vault/internal/platform/cache"
	"github.com/odyssey-erp/custody-vault/internal/platform/db"
	"github.com/odyssey-erp/custody-vault/internal/shared"
	"github.com/odyssey-erp/custody-vault/internal/vault"
	vaulthttp "github.com/odyssey-erp/custody-vault/internal/vault/http"
	"github.com/odyssey-erp/custody-vault/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping vault startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cache.Options{Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	ledger := custody.NewPGLedger(dbpool)
	custodyService := custody.NewService(ledger, logger)

	vaultSvc, err := app.NewVault(ctx, app.VaultDeps{
		Config:    cfg,
		Logger:    logger,
		Pool:      dbpool,
		Redis:     redisClient,
		Assets:    ledger,
		Observer:  metrics,
		Recorders: []vault.Recorder{jobs.NewLiquidationNotifier(jobClient)},
	})
	if err != nil {
		logger.Error("init vault", slog.Any("error", err))
		os.Exit(1)
	}
	if status, err := vaultSvc.Status(ctx); err == nil {
		metrics.ObserveClock(status)
	}

	authService := auth.NewService(auth.NewRepository(dbpool), cfg.BcryptCost, logger)
	idempotency := shared.NewIdempotencyStore(dbpool)
	vaultHandler := vaulthttp.NewHandler(logger, vaultSvc, custodyService, idempotency)
	auditHandler := audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), vaultSvc)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		Auth:         authService,
		VaultHandler: vaultHandler,
		AuditHandler: auditHandler,
		JobHandler:   jobHandler,
		Metrics:      metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": dbpool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
