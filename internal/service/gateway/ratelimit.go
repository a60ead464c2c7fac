package gateway

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// RateLimiter admits at most a fixed number of calls per key in a rolling window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisRateLimiter keeps one sorted set per key, scored by admission time.
type RedisRateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	clock  clockwork.Clock
}

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration, clock clockwork.Clock) *RedisRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, clock: clock}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	now := l.clock.Now()
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()
	floor := strconv.FormatInt(now.Add(-l.window).UnixMilli(), 10)

	var card *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", floor)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		card = pipe.ZCard(ctx, key)
		pipe.PExpire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	if card.Val() > int64(l.limit) {
		// rejected calls do not occupy the window
		if err := l.rdb.ZRem(ctx, key, member).Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// MemoryRateLimiter is the single-process variant.
type MemoryRateLimiter struct {
	limit  int
	window time.Duration
	clock  clockwork.Clock

	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewMemoryRateLimiter(limit int, window time.Duration, clock clockwork.Clock) *MemoryRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		hits:   make(map[string][]time.Time),
	}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	now := l.clock.Now()
	floor := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.hits[key][:0]
	for _, at := range l.hits[key] {
		if at.After(floor) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= l.limit {
		l.hits[key] = kept
		return false, nil
	}
	l.hits[key] = append(kept, now)
	return true, nil
}
