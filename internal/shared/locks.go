package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// VaultLockKey builds redis keys for vault critical sections.
func VaultLockKey(scope string) string {
	return fmt.Sprintf("vault:%s:lock", scope)
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out exclusive leases on redis keys.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisLocker constructs a locker. ttl bounds how long a crashed holder
// keeps the lease; wait bounds how long Acquire polls for it.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait, poll: 25 * time.Millisecond}
}

// Acquire blocks until the lease on key is held, ctx ends, or the wait
// budget runs out.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("redis locker not initialised")
	}
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
