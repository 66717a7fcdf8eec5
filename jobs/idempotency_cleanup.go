package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/custody-vault/internal/jobs"
)

// IdempotencyPruner deletes idempotency keys older than a retention window.
type IdempotencyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob keeps idempotency_keys bounded. Keys of successful
// withdrawals are never deleted by the API.
type IdempotencyCleanupJob struct {
	Store     IdempotencyPruner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIdempotencyCleanupTask constructs the cron task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	if j.Retention <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	removed, err := j.Store.Cleanup(ctx, j.Retention)
	if err != nil {
		logger.Error("idempotency cleanup", slog.Any("error", err))
		return err
	}
	logger.Info("idempotency keys pruned", slog.Int64("removed", removed), slog.Duration("retention", j.Retention))
	return nil
}
