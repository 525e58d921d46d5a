package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "relay:ratelimit:"

// allower is the part of redis_rate.Limiter the backend needs.
type allower interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

// RedisLimiter shares admission state between relay instances through Redis.
// It uses GCRA with burst equal to the per-window maximum, which keeps the
// remaining count and reset hint observable the same way as FixedWindow.
type RedisLimiter struct {
	limiter allower
	now     func() time.Time

	mu   sync.RWMutex
	opts Options
}

func NewRedisLimiter(rdb *redis.Client, opts Options) *RedisLimiter {
	return &RedisLimiter{limiter: redis_rate.NewLimiter(rdb), opts: opts, now: time.Now}
}

func (r *RedisLimiter) SetOptions(opts Options) {
	r.mu.Lock()
	r.opts = opts
	r.mu.Unlock()
}

func (r *RedisLimiter) Admit(ctx context.Context, identity string) (Decision, error) {
	r.mu.RLock()
	opts := r.opts
	r.mu.RUnlock()

	limit := opts.MaxPerWindow
	if limit <= 0 {
		return Decision{Limit: limit, ResetAt: r.now().Add(opts.Window), RetryAfter: retryAfter(opts.Window)}, nil
	}

	res, err := r.limiter.Allow(ctx, redisKeyPrefix+identity, redis_rate.Limit{
		Rate:   limit,
		Burst:  limit,
		Period: opts.Window,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("redis admission: %w", err)
	}

	now := r.now()
	d := Decision{
		Allowed:   res.Allowed > 0,
		Limit:     limit,
		Remaining: res.Remaining,
		ResetAt:   now.Add(res.ResetAfter),
	}
	if !d.Allowed {
		d.Remaining = 0
		d.RetryAfter = retryAfter(res.RetryAfter)
	}
	return d, nil
}
