package jobs

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/custody-vault/internal/vault"
)

// LiquidationNotifier is a vault.Recorder that queues an alert whenever the
// liquidation clock is armed or cancelled.
type LiquidationNotifier struct {
	queue Enqueuer
}

// NewLiquidationNotifier constructs the recorder.
func NewLiquidationNotifier(queue Enqueuer) *LiquidationNotifier {
	return &LiquidationNotifier{queue: queue}
}

// RecordEvent implements vault.Recorder.
func (n *LiquidationNotifier) RecordEvent(ctx context.Context, event vault.Event) error {
	var kind string
	switch event.Kind {
	case vault.EventLiquidationBegun:
		kind = AlertArmed
	case vault.EventLiquidationCancelled:
		kind = AlertCancelled
	default:
		return nil
	}
	task, err := NewLiquidationNotifyTask(LiquidationNotifyPayload{
		Kind:     kind,
		Caller:   string(event.Caller),
		Deadline: event.Deadline,
		At:       event.At,
	})
	if err != nil {
		return err
	}
	_, err = n.queue.EnqueueContext(ctx, task, asynq.Queue(QueueAlerts))
	return err
}

var _ vault.Recorder = (*LiquidationNotifier)(nil)
