package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAlerts carries liquidation notifications ahead of routine work.
	QueueAlerts = "alerts"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskLiquidationWatch polls the liquidation clock.
	TaskLiquidationWatch = "vault:liquidation:watch"
	// TaskLiquidationNotify fans a liquidation alert out to operators.
	TaskLiquidationNotify = "vault:liquidation:notify"
	// TaskIdempotencyCleanup prunes expired withdrawal idempotency keys.
	TaskIdempotencyCleanup = "vault:idempotency:cleanup"
)

// Alert kinds carried by TaskLiquidationNotify.
const (
	AlertArmed       = "armed"
	AlertApproaching = "approaching"
	AlertTriggered   = "triggered"
	AlertCancelled   = "cancelled"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// MailHandler delivers TaskTypeSendEmail tasks. Delivery is a structured
// log line until an SMTP relay is configured.
type MailHandler struct {
	Logger *slog.Logger
}

// Handle processes TaskTypeSendEmail tasks.
func (h MailHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("send email", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}

// LiquidationNotifyPayload describes one liquidation alert.
type LiquidationNotifyPayload struct {
	Kind     string    `json:"kind"`
	Caller   string    `json:"caller,omitempty"`
	Deadline time.Time `json:"deadline,omitempty"`
	At       time.Time `json:"at"`
}

// NewLiquidationNotifyTask constructs the notify task.
func NewLiquidationNotifyTask(payload LiquidationNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLiquidationNotify, data, asynq.MaxRetry(5)), nil
}

// NewLiquidationWatchTask constructs the periodic watch task.
func NewLiquidationWatchTask() *asynq.Task {
	return asynq.NewTask(TaskLiquidationWatch, nil, asynq.MaxRetry(0))
}
