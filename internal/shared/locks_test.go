package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, time.Minute, wait), mr
}

func TestVaultLockKey(t *testing.T) {
	require.Equal(t, "vault:state:lock", VaultLockKey("state"))
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	locker, mr := newTestLocker(t, 100*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "vault:test:lock")
	require.NoError(t, err)
	require.True(t, mr.Exists("vault:test:lock"))
	require.Equal(t, time.Minute, mr.TTL("vault:test:lock"))

	_, err = locker.Acquire(ctx, "vault:test:lock")
	require.ErrorIs(t, err, ErrLockNotAcquired)

	release()
	require.False(t, mr.Exists("vault:test:lock"))

	release, err = locker.Acquire(ctx, "vault:test:lock")
	require.NoError(t, err)
	release()
}

func TestRedisLockerReleaseKeepsForeignLease(t *testing.T) {
	locker, mr := newTestLocker(t, 50*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "vault:test:lock")
	require.NoError(t, err)

	// Lease expired and another holder took it over.
	require.NoError(t, mr.Set("vault:test:lock", "someone-else"))
	release()

	value, err := mr.Get("vault:test:lock")
	require.NoError(t, err)
	require.Equal(t, "someone-else", value)
}

func TestRedisLockerHonoursContext(t *testing.T) {
	locker, _ := newTestLocker(t, time.Minute)
	release, err := locker.Acquire(context.Background(), "vault:test:lock")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "vault:test:lock")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
