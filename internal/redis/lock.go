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
	ErrLockNotAcquired = errors.New("day lock not acquired")
)

// Locker serializes ledger writes for one doctor's calendar day.
type Locker interface {
	WithDayLock(ctx context.Context, doctorID int64, date string, fn func(ctx context.Context) error) error
}

func dayKey(doctorID int64, date string) string {
	return fmt.Sprintf("lock:day:%d:%s", doctorID, date)
}

type redisDayLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisDayLocker creates a locker backed by one Redis key per doctor and day.
// Contending writers poll for up to wait before giving up with ErrLockNotAcquired.
func NewRedisDayLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisDayLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *redisDayLocker) WithDayLock(ctx context.Context, doctorID int64, date string, fn func(ctx context.Context) error) error {
	key := dayKey(doctorID, date)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisDayLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	backoff := 5 * time.Millisecond

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire day lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release day lock: %w", err)
	}
	return nil
}
