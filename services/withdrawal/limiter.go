package withdrawal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/now"
	"github.com/redis/go-redis/v9"
)

// Limiter throttles withdrawal attempts per user in fixed hourly windows.
// It is a best-effort brake on automated abuse; balance safety never depends on it.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

func windowStart(t time.Time) time.Time {
	return now.With(t).BeginningOfHour()
}

// MemoryLimiter counts in process memory. Counts are per instance.
type MemoryLimiter struct {
	limit int
	clock func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	start time.Time
	count int
}

func NewMemoryLimiter(limit int) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, clock: time.Now, buckets: map[string]*bucket{}}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	start := windowStart(m.clock())

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || !b.start.Equal(start) {
		b = &bucket{start: start}
		m.buckets[key] = b
	}
	b.count++
	return b.count <= m.limit, nil
}

// Sweep drops buckets from past windows and returns how many were removed.
func (m *MemoryLimiter) Sweep() int {
	start := windowStart(m.clock())

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, b := range m.buckets {
		if b.start.Before(start) {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}

// RedisLimiter shares counts between instances through Redis.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	clock  func() time.Time
}

func NewRedisLimiter(client *redis.Client, limit int) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, clock: time.Now}
}

// Key is the Redis key holding the current window's count for key.
func (r *RedisLimiter) Key(key string) string {
	return fmt.Sprintf("withdraw:attempts:%s:%d", key, windowStart(r.clock()).Unix())
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := r.Key(key)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, time.Hour)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("withdrawal limiter: %w", err)
	}
	return incr.Val() <= int64(r.limit), nil
}
