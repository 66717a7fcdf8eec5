package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/custody-vault/internal/app"
	"github.com/odyssey-erp/custody-vault/internal/custody"
	jobmetrics "github.com/odyssey-erp/custody-vault/internal/jobs"
	"github.com/odyssey-erp/custody-vault/internal/platform/cache"
	"github.com/odyssey-erp/custody-vault/internal/platform/db"
	"github.com/odyssey-erp/custody-vault/internal/shared"
	"github.com/odyssey-erp/custody-vault/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	// The worker only reads the clock; it shares state with the API through
	// postgres and never withdraws.
	vaultSvc, err := app.NewVault(ctx, app.VaultDeps{
		Config: cfg,
		Logger: logger,
		Pool:   pool,
		Redis:  redisClient,
		Assets: custody.NewPGLedger(pool),
	})
	if err != nil {
		logger.Error("init vault", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := jobmetrics.NewMetrics(nil)
	watchJob := jobs.NewLiquidationWatchJob(vaultSvc, jobClient, redisClient, cfg.AlertWarning, logger, metrics)
	notifyJob := &jobs.LiquidationNotifyJob{
		Queue:      jobClient,
		AlertEmail: cfg.AlertEmail,
		Logger:     logger,
		Metrics:    metrics,
	}
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:     shared.NewIdempotencyStore(pool),
		Retention: cfg.IdempotencyRetention,
		Logger:    logger,
		Metrics:   metrics,
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLiquidationWatch, Handler: watchJob.Handle},
			{Type: jobs.TaskLiquidationNotify, Handler: notifyJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.WatchCron, Task: jobs.NewLiquidationWatchTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueAlerts)}},
			{Spec: cfg.CleanupCron, Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
