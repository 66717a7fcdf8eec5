package vault

import (
	"context"
	"time"

	"github.com/odyssey-erp/custody-vault/internal/shared"
)

// Operation names a vault entry point for metrics and logs.
type Operation string

const (
	OpAddUser           Operation = "add_user"
	OpBeginLiquidation  Operation = "begin_liquidation"
	OpCancelLiquidation Operation = "cancel_liquidation"
	OpWithdraw          Operation = "withdraw"
	OpLiquidateWithdraw Operation = "liquidate_withdraw"
)

// EventKind classifies an accepted state change.
type EventKind string

const (
	EventRoleAssigned         EventKind = "vault.role_assigned"
	EventLiquidationBegun     EventKind = "vault.liquidation_begun"
	EventLiquidationCancelled EventKind = "vault.liquidation_cancelled"
	EventWithdrawn            EventKind = "vault.withdrawn"
	EventLiquidated           EventKind = "vault.liquidated"
)

// Event describes an accepted operation. Fields not relevant to Kind are zero.
type Event struct {
	Kind     EventKind
	Caller   Identity
	Target   Identity
	Role     Role
	Asset    Asset
	Amount   uint64
	To       Identity
	Deadline time.Time
	At       time.Time
}

// Recorder receives events after the operation has fully completed.
type Recorder interface {
	RecordEvent(ctx context.Context, event Event) error
}

// Observer receives the outcome of every entry point.
type Observer interface {
	ObserveOperation(op Operation, err error)
	ObserveClock(status ClockStatus)
}

// AuditWriter persists audit rows.
type AuditWriter interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AuditRecorder turns vault events into audit log rows.
type AuditRecorder struct {
	writer AuditWriter
}

// NewAuditRecorder wraps writer.
func NewAuditRecorder(writer AuditWriter) *AuditRecorder {
	return &AuditRecorder{writer: writer}
}

// RecordEvent implements Recorder.
func (r *AuditRecorder) RecordEvent(ctx context.Context, event Event) error {
	log := shared.AuditLog{
		Actor:  string(event.Caller),
		Action: string(event.Kind),
		At:     event.At,
		Meta:   map[string]any{},
	}
	switch event.Kind {
	case EventRoleAssigned:
		log.Entity = "vault_principal"
		log.EntityID = string(event.Target)
		log.Meta["role"] = event.Role.String()
	case EventLiquidationBegun, EventLiquidationCancelled:
		log.Entity = "vault_liquidation"
		log.EntityID = "clock"
		if !event.Deadline.IsZero() {
			log.Meta["deadline"] = event.Deadline.UTC().Format(time.RFC3339Nano)
		}
	case EventWithdrawn, EventLiquidated:
		log.Entity = "vault_pool"
		log.EntityID = event.Asset.String()
		log.Meta["amount"] = event.Amount
		log.Meta["to"] = string(event.To)
	default:
		log.Entity = "vault"
		log.EntityID = string(event.Kind)
	}
	return r.writer.Record(ctx, log)
}
