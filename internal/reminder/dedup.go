package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore guarantees at-most-once emission per idempotency key. The sweep
// interval and threshold granularity are not aligned, so the same
// (appointment, threshold) pair is evaluated by many ticks; only the first
// may emit.
type DedupStore interface {
	// Once reports true the first time key is seen; the key stays claimed
	// for ttl.
	Once(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisDedup claims keys with SETNX so the guarantee holds across worker
// restarts and across concurrently deployed workers.
type RedisDedup struct {
	client *redis.Client
}

func NewRedisDedup(client *redis.Client) *RedisDedup {
	return &RedisDedup{client: client}
}

func (d *RedisDedup) Once(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, "dedup:"+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim dedup key %s: %w", key, err)
	}
	return ok, nil
}

// MemoryDedup is a process-local store for tests and single-node dev runs.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (d *MemoryDedup) Once(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expiry, ok := d.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	d.seen[key] = now.Add(ttl)
	return true, nil
}
