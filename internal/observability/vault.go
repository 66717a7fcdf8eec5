package observability

import (
	"errors"

	"github.com/odyssey-erp/custody-vault/internal/vault"
)

// ObserveOperation implements vault.Observer.
func (m *Metrics) ObserveOperation(op vault.Operation, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(op), Outcome(err)).Inc()
}

// ObserveClock implements vault.Observer.
func (m *Metrics) ObserveClock(status vault.ClockStatus) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.last = status
	m.mu.Unlock()
	m.delay.Set(status.Delay.Seconds())
	if !status.Armed {
		m.armed.Set(0)
		m.deadline.Set(0)
		return
	}
	m.armed.Set(1)
	m.deadline.Set(float64(status.Deadline.Unix()))
}

// LastClock mengembalikan status jam terakhir yang diamati.
func (m *Metrics) LastClock() vault.ClockStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Outcome memetakan error vault ke label metrik.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, vault.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, vault.ErrClockNotTriggered):
		return "not_triggered"
	case errors.Is(err, vault.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, vault.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, vault.ErrReentrantCall):
		return "reentrant"
	case errors.Is(err, vault.ErrInvalidAmount), errors.Is(err, vault.ErrInvalidRole), errors.Is(err, vault.ErrInvalidIdentity):
		return "invalid"
	default:
		return "error"
	}
}

var _ vault.Observer = (*Metrics)(nil)
