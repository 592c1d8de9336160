package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/plans"
)

// RedisLimiter shares per-tenant window counters across instances using
// an INCR+EXPIRE pipeline. Counters live under ratelimit:<tenantID> with
// a one-second TTL, so a tenant's budget is exact no matter how many
// instances serve it.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	// failOpen controls behavior when Redis is unreachable: allow the
	// request (availability over strict limiting) or deny it.
	failOpen bool
	logger   *observability.Logger
	now      func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, failOpen bool, logger *observability.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		prefix:   "ratelimit",
		failOpen: failOpen,
		logger:   logger,
		now:      time.Now,
	}
}

// Check consumes one unit of the tenant's one-second budget.
func (l *RedisLimiter) Check(ctx context.Context, tenantID string, plan plans.Tier) (Decision, error) {
	limits := plans.Limits(plan)
	key := fmt.Sprintf("%s:%s", l.prefix, tenantID)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.WithError(err).Warn("redis rate limit check failed")
		if l.failOpen {
			return Decision{
				Allowed:    true,
				Limit:      limits.RequestsPerSecond,
				Remaining:  limits.RequestsPerSecond,
				ResetEpoch: l.now().Add(time.Second).Unix(),
			}, nil
		}
		return Decision{}, fmt.Errorf("rate limit check: %w", err)
	}

	count := incr.Val()
	decision := Decision{
		Limit:      limits.RequestsPerSecond,
		ResetEpoch: l.resetEpoch(ctx, key),
	}

	if count > int64(limits.RequestsPerSecond) {
		decision.Remaining = 0
		decision.RetryAfter = 1
		return decision, nil
	}

	decision.Allowed = true
	decision.Remaining = limits.RequestsPerSecond - int(count)
	return decision, nil
}

// resetEpoch derives the window reset from the key's remaining TTL.
func (l *RedisLimiter) resetEpoch(ctx context.Context, key string) int64 {
	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = time.Second
	}
	return l.now().Add(ttl).Unix()
}

// Reset clears a tenant's counter. Used by tests and admin tooling.
func (l *RedisLimiter) Reset(ctx context.Context, tenantID string) error {
	return l.client.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, tenantID)).Err()
}
