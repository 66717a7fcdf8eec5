package vault

import (
	"fmt"
	"math"
	"time"
)

// unixToInternal is the offset between the Unix epoch and year 1, which
// bounds the largest instant time.Unix can represent.
const unixToInternal int64 = (1969*365 + 1969/4 - 1969/100 + 1969/400) * 24 * 60 * 60

// MaxTime is the deadline reported while the liquidation clock is idle.
var MaxTime = time.Unix(math.MaxInt64-unixToInternal, 999999999).UTC()

// LiquidationClock holds the single pending-liquidation deadline. A nil
// deadline means the clock is idle.
type LiquidationClock struct {
	delay    time.Duration
	deadline *time.Time
}

// ClockStatus is a point-in-time view of the liquidation clock.
type ClockStatus struct {
	Armed     bool
	Triggered bool
	// Deadline is zero while idle.
	Deadline time.Time
	Delay    time.Duration
	// Remaining is zero while idle or once triggered.
	Remaining time.Duration
}

// NextLiquidation renders the deadline as unix seconds, math.MaxUint64 when idle.
func (s ClockStatus) NextLiquidation() uint64 {
	if !s.Armed {
		return math.MaxUint64
	}
	return uint64(s.Deadline.Unix())
}

// NewLiquidationClock returns an idle clock.
func NewLiquidationClock(delay time.Duration) *LiquidationClock {
	return &LiquidationClock{delay: delay}
}

// Delay returns the fixed liquidation delay.
func (c *LiquidationClock) Delay() time.Duration {
	return c.delay
}

// Deadline returns the armed deadline.
func (c *LiquidationClock) Deadline() (time.Time, bool) {
	if c.deadline == nil {
		return time.Time{}, false
	}
	return *c.deadline, true
}

// Armed reports whether a liquidation is pending.
func (c *LiquidationClock) Armed() bool {
	return c.deadline != nil
}

// IsTriggered reports whether the clock is armed and its deadline has passed.
func (c *LiquidationClock) IsTriggered(now time.Time) bool {
	return c.deadline != nil && !now.Before(*c.deadline)
}

// CurrentDeadline returns the deadline, or MaxTime while idle.
func (c *LiquidationClock) CurrentDeadline() time.Time {
	if c.deadline == nil {
		return MaxTime
	}
	return *c.deadline
}

// StatusAt describes the clock as observed at now.
func (c *LiquidationClock) StatusAt(now time.Time) ClockStatus {
	status := ClockStatus{Delay: c.delay}
	if c.deadline == nil {
		return status
	}
	status.Armed = true
	status.Deadline = *c.deadline
	status.Triggered = c.IsTriggered(now)
	if !status.Triggered {
		status.Remaining = c.deadline.Sub(now)
	}
	return status
}

// Begin arms the clock at now+delay on behalf of a caller holding role.
// Re-arming resets the deadline relative to now.
func (c *LiquidationClock) Begin(role Role, now time.Time) (time.Time, error) {
	if err := checkBegin(role); err != nil {
		return time.Time{}, err
	}
	deadline := c.next(now)
	c.set(&deadline)
	return deadline, nil
}

// Cancel returns the clock to idle on behalf of a caller holding role.
func (c *LiquidationClock) Cancel(role Role) error {
	if err := checkCancel(role); err != nil {
		return err
	}
	c.set(nil)
	return nil
}

// next is truncated to the microsecond precision of timestamptz so the
// deadline a caller is given matches the one persisted.
func (c *LiquidationClock) next(now time.Time) time.Time {
	return now.Add(c.delay).Truncate(time.Microsecond)
}

func (c *LiquidationClock) set(deadline *time.Time) {
	if deadline == nil {
		c.deadline = nil
		return
	}
	d := *deadline
	c.deadline = &d
}

func checkBegin(role Role) error {
	switch role {
	case RoleLiquidate, RolePartial, RoleFull:
		return nil
	case RoleNone:
		return fmt.Errorf("%w: %s cannot begin liquidation", ErrUnauthorized, role)
	default:
		return fmt.Errorf("%w: %d", ErrInvalidRole, uint8(role))
	}
}

func checkCancel(role Role) error {
	switch role {
	case RolePartial, RoleFull:
		return nil
	case RoleNone, RoleLiquidate:
		return fmt.Errorf("%w: %s cannot cancel liquidation", ErrUnauthorized, role)
	default:
		return fmt.Errorf("%w: %d", ErrInvalidRole, uint8(role))
	}
}
