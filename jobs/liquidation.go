package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/odyssey-erp/custody-vault/internal/jobs"
	"github.com/odyssey-erp/custody-vault/internal/vault"
)

// StatusSource reports the liquidation clock. *vault.Vault satisfies it.
type StatusSource interface {
	Status(ctx context.Context) (vault.ClockStatus, error)
}

// Enqueuer submits tasks. *asynq.Client and *Client satisfy it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// LiquidationWatchJob raises alerts as an armed clock nears and passes its
// deadline. Each (deadline, kind) pair alerts once across all workers.
type LiquidationWatchJob struct {
	Source   StatusSource
	Queue    Enqueuer
	Redis    *redis.Client
	Warning  time.Duration
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
	dedupTTL time.Duration
}

// NewLiquidationWatchJob initialises the watch handler. warning is how far
// ahead of the deadline the approaching alert fires.
func NewLiquidationWatchJob(source StatusSource, queue Enqueuer, rdb *redis.Client, warning time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *LiquidationWatchJob {
	return &LiquidationWatchJob{
		Source:   source,
		Queue:    queue,
		Redis:    rdb,
		Warning:  warning,
		Logger:   logger,
		Metrics:  metrics,
		clock:    func() time.Time { return time.Now().UTC() },
		dedupTTL: 30 * 24 * time.Hour,
	}
}

// Handle executes one watch pass.
func (j *LiquidationWatchJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil || j.Queue == nil {
		return errors.New("liquidation watch: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLiquidationWatch)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	status, err := j.Source.Status(ctx)
	if err != nil {
		j.logger().Error("load liquidation status", slog.Any("error", err))
		return err
	}
	kind := j.classify(status)
	if kind == "" {
		return nil
	}
	first, err := j.claim(ctx, status.Deadline, kind)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	task, err := NewLiquidationNotifyTask(LiquidationNotifyPayload{Kind: kind, Deadline: status.Deadline, At: j.clock()})
	if err != nil {
		return err
	}
	if _, err := j.Queue.EnqueueContext(ctx, task, asynq.Queue(QueueAlerts)); err != nil {
		j.release(ctx, status.Deadline, kind)
		return fmt.Errorf("enqueue liquidation notify: %w", err)
	}
	j.logger().Warn("liquidation alert raised",
		slog.String("kind", kind),
		slog.Time("deadline", status.Deadline),
		slog.Duration("remaining", status.Remaining),
	)
	return nil
}

func (j *LiquidationWatchJob) classify(status vault.ClockStatus) string {
	switch {
	case !status.Armed:
		return ""
	case status.Triggered:
		return AlertTriggered
	case j.Warning > 0 && status.Remaining <= j.Warning:
		return AlertApproaching
	default:
		return ""
	}
}

func alertKey(deadline time.Time, kind string) string {
	return "vault:liquidation:alert:" + strconv.FormatInt(deadline.Unix(), 10) + ":" + kind
}

// claim reports whether this pass is the first to see (deadline, kind).
// Without redis every pass alerts.
func (j *LiquidationWatchJob) claim(ctx context.Context, deadline time.Time, kind string) (bool, error) {
	if j.Redis == nil {
		return true, nil
	}
	ok, err := j.Redis.SetNX(ctx, alertKey(deadline, kind), j.clock().Format(time.RFC3339), j.dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim liquidation alert: %w", err)
	}
	return ok, nil
}

func (j *LiquidationWatchJob) release(ctx context.Context, deadline time.Time, kind string) {
	if j.Redis == nil {
		return
	}
	_ = j.Redis.Del(context.WithoutCancel(ctx), alertKey(deadline, kind)).Err()
}

func (j *LiquidationWatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// MailQueue submits send-email tasks.
type MailQueue interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// LiquidationNotifyJob turns a liquidation alert into operator mail.
type LiquidationNotifyJob struct {
	Queue      MailQueue
	AlertEmail string
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle processes TaskLiquidationNotify tasks.
func (j *LiquidationNotifyJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("liquidation notify: handler not configured")
	}
	var payload LiquidationNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskLiquidationNotify)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	j.Metrics.AddAlert(payload.Kind)

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("kind", payload.Kind), slog.String("caller", payload.Caller))
	if j.AlertEmail == "" || j.Queue == nil {
		logger.Warn("liquidation alert has no mail recipient")
		return nil
	}
	if _, err := j.Queue.EnqueueSendEmail(ctx, liquidationMail(j.AlertEmail, payload), asynq.Queue(QueueAlerts)); err != nil {
		logger.Error("enqueue liquidation mail", slog.Any("error", err))
		return err
	}
	return nil
}

func liquidationMail(to string, p LiquidationNotifyPayload) SendEmailPayload {
	deadline := "n/a"
	if !p.Deadline.IsZero() {
		deadline = p.Deadline.UTC().Format(time.RFC3339)
	}
	var subject, body string
	switch p.Kind {
	case AlertArmed:
		subject = "[vault] liquidation begun"
		body = fmt.Sprintf("Liquidation was begun by %s. Deadline: %s. A PARTIAL or FULL principal can cancel it before then.", p.Caller, deadline)
	case AlertApproaching:
		subject = "[vault] liquidation deadline approaching"
		body = fmt.Sprintf("The liquidation deadline %s is near. Cancel it now if it is unwanted.", deadline)
	case AlertTriggered:
		subject = "[vault] liquidation triggered"
		body = fmt.Sprintf("The liquidation deadline %s has passed. LIQUIDATE principals may now withdraw.", deadline)
	case AlertCancelled:
		subject = "[vault] liquidation cancelled"
		body = fmt.Sprintf("Liquidation was cancelled by %s.", p.Caller)
	default:
		subject = "[vault] liquidation " + p.Kind
		body = fmt.Sprintf("Liquidation event %q at %s.", p.Kind, p.At.UTC().Format(time.RFC3339))
	}
	return SendEmailPayload{To: to, Subject: subject, Body: body}
}
