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
	ErrLockNotAcquired = errors.New("scheduling lock not acquired")
)

// Locker serializes critical sections per scope key. The booking path locks
// a (cabinet, practitioner) pair around its check-then-write sequence; the
// reminder sweep locks a cabinet so two sweeps never scan it concurrently.
type Locker interface {
	WithLock(ctx context.Context, scope string, fn func(ctx context.Context) error) error
}

// ScheduleScope builds the lock key guarding conflict checks for one
// practitioner's calendar within one cabinet.
func ScheduleScope(cabinetID, practitionerID uuid.UUID) string {
	return fmt.Sprintf("sched:%s:%s", cabinetID, practitionerID)
}

// SweepScope builds the lock key guarding a cabinet's reminder sweep.
func SweepScope(cabinetID uuid.UUID) string {
	return fmt.Sprintf("sweep:%s", cabinetID)
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker backed by per-scope Redis keys.
func NewRedisLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, scope string, fn func(ctx context.Context) error) error {
	key := "lock:" + scope
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", scope, err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
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

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
