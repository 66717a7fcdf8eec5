package vault

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBeginLiquidationRoles(t *testing.T) {
	clock := NewLiquidationClock(time.Hour)
	_, err := clock.Begin(RoleNone, epoch)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.False(t, clock.Armed())

	for _, role := range []Role{RoleLiquidate, RolePartial, RoleFull} {
		clock := NewLiquidationClock(time.Hour)
		deadline, err := clock.Begin(role, epoch)
		require.NoError(t, err, role.String())
		require.Equal(t, epoch.Add(time.Hour), deadline)
		require.Equal(t, deadline, clock.CurrentDeadline())
	}
}

func TestRearmResetsRelativeToNow(t *testing.T) {
	clock := NewLiquidationClock(time.Hour)
	_, err := clock.Begin(RoleLiquidate, epoch)
	require.NoError(t, err)

	later := epoch.Add(45 * time.Minute)
	deadline, err := clock.Begin(RoleFull, later)
	require.NoError(t, err)
	require.Equal(t, later.Add(time.Hour), deadline)
	require.NotEqual(t, epoch.Add(2*time.Hour), deadline)
}

func TestDeadlineHasMicrosecondPrecision(t *testing.T) {
	clock := NewLiquidationClock(time.Hour)
	now := epoch.Add(123456789 * time.Nanosecond)
	deadline, err := clock.Begin(RoleLiquidate, now)
	require.NoError(t, err)
	require.Equal(t, epoch.Add(time.Hour+123456*time.Microsecond), deadline)
	require.Equal(t, deadline, clock.CurrentDeadline())
	require.True(t, clock.IsTriggered(deadline))
}

func TestCancelLiquidationRoles(t *testing.T) {
	clock := NewLiquidationClock(time.Hour)
	deadline, err := clock.Begin(RoleLiquidate, epoch)
	require.NoError(t, err)

	require.ErrorIs(t, clock.Cancel(RoleLiquidate), ErrUnauthorized)
	require.ErrorIs(t, clock.Cancel(RoleNone), ErrUnauthorized)
	require.Equal(t, deadline, clock.CurrentDeadline())

	require.NoError(t, clock.Cancel(RolePartial))
	require.False(t, clock.Armed())
	require.Equal(t, MaxTime, clock.CurrentDeadline())

	_, err = clock.Begin(RoleLiquidate, epoch)
	require.NoError(t, err)
	require.NoError(t, clock.Cancel(RoleFull))
	require.Equal(t, MaxTime, clock.CurrentDeadline())
}

func TestCancelWhileIdleIsAccepted(t *testing.T) {
	clock := NewLiquidationClock(time.Hour)
	require.NoError(t, clock.Cancel(RoleFull))
	require.False(t, clock.Armed())
}

func TestIsTriggeredBoundary(t *testing.T) {
	clock := NewLiquidationClock(time.Hour)
	require.False(t, clock.IsTriggered(epoch.Add(100*365*24*time.Hour)))

	deadline, err := clock.Begin(RoleLiquidate, epoch)
	require.NoError(t, err)
	require.False(t, clock.IsTriggered(deadline.Add(-time.Nanosecond)))
	require.True(t, clock.IsTriggered(deadline))
	require.True(t, clock.IsTriggered(deadline.Add(time.Second)))
}

func TestStatusAt(t *testing.T) {
	clock := NewLiquidationClock(time.Hour)
	idle := clock.StatusAt(epoch)
	require.False(t, idle.Armed)
	require.True(t, idle.Deadline.IsZero())
	require.Equal(t, uint64(math.MaxUint64), idle.NextLiquidation())
	require.Equal(t, time.Hour, idle.Delay)

	deadline, err := clock.Begin(RolePartial, epoch)
	require.NoError(t, err)
	pending := clock.StatusAt(epoch.Add(20 * time.Minute))
	require.True(t, pending.Armed)
	require.False(t, pending.Triggered)
	require.Equal(t, 40*time.Minute, pending.Remaining)
	require.Equal(t, uint64(deadline.Unix()), pending.NextLiquidation())

	fired := clock.StatusAt(deadline)
	require.True(t, fired.Triggered)
	require.Zero(t, fired.Remaining)
}

func TestMaxTimeIsLatestRepresentable(t *testing.T) {
	require.True(t, MaxTime.After(time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, int64(math.MaxInt64)-unixToInternal, MaxTime.Unix())
}
