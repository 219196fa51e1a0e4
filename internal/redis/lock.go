package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("doctor-day lock not acquired")
)

const lockRetryInterval = 20 * time.Millisecond

// Locker serializes queue mutations for a single doctor-day partition.
// Queue-number issuance and call-next selection both need a consistent view of
// the waiting set, so every mutation runs inside fn under this lock.
type Locker interface {
	WithQueueLock(ctx context.Context, doctorID uuid.UUID, day string, fn func(ctx context.Context) error) error
}

type redisQueueLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisQueueLocker creates a locker keyed on (doctor, calendar day).
// Acquisition is bounded by wait; callers get ErrLockNotAcquired instead of
// blocking indefinitely.
func NewRedisQueueLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisQueueLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *redisQueueLocker) WithQueueLock(ctx context.Context, doctorID uuid.UUID, day string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:queue:%s:%s", doctorID.String(), day)
	token := uuid.NewString()

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire queue lock: %w", err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisQueueLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release queue lock: %w", err)
	}
	return nil
}
