package ratelimit

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/plans"
)

func newRedisFixture(t *testing.T, failOpen bool) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewRedisLimiter(client, failOpen, logger), mr
}

func TestRedisLimiter_ExactlyOneDenialPastLimit(t *testing.T) {
	limiter, _ := newRedisFixture(t, true)
	ctx := context.Background()

	limit := plans.Limits(plans.TierFree).RequestsPerSecond
	denied := 0
	for i := 0; i < limit+1; i++ {
		d, err := limiter.Check(ctx, "t1", plans.TierFree)
		require.NoError(t, err)
		if !d.Allowed {
			denied++
			assert.Equal(t, 1, d.RetryAfter)
		}
	}
	assert.Equal(t, 1, denied)
}

func TestRedisLimiter_WindowExpiry(t *testing.T) {
	limiter, mr := newRedisFixture(t, true)
	ctx := context.Background()

	limit := plans.Limits(plans.TierFree).RequestsPerSecond
	for i := 0; i < limit; i++ {
		d, err := limiter.Check(ctx, "t1", plans.TierFree)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := limiter.Check(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	mr.FastForward(time.Second)

	d, err = limiter.Check(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimiter_SharedAcrossClients(t *testing.T) {
	limiter, mr := newRedisFixture(t, true)
	other := NewRedisLimiter(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		true,
		observability.NewLogger(observability.ErrorLevel, io.Discard),
	)
	ctx := context.Background()

	limit := plans.Limits(plans.TierFree).RequestsPerSecond
	for i := 0; i < limit; i++ {
		d, err := limiter.Check(ctx, "t1", plans.TierFree)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	// A second instance sees the same exhausted budget.
	d, err := other.Check(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestRedisLimiter_FailOpen(t *testing.T) {
	limiter, mr := newRedisFixture(t, true)
	ctx := context.Background()

	mr.Close()

	d, err := limiter.Check(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "redis outage allows requests when failing open")
}

func TestRedisLimiter_FailClosed(t *testing.T) {
	limiter, mr := newRedisFixture(t, false)
	ctx := context.Background()

	mr.Close()

	_, err := limiter.Check(ctx, "t1", plans.TierFree)
	assert.Error(t, err)
}

func TestRedisLimiter_Reset(t *testing.T) {
	limiter, _ := newRedisFixture(t, true)
	ctx := context.Background()

	limit := plans.Limits(plans.TierFree).RequestsPerSecond
	for i := 0; i < limit+1; i++ {
		_, err := limiter.Check(ctx, "t1", plans.TierFree)
		require.NoError(t, err)
	}

	require.NoError(t, limiter.Reset(ctx, "t1"))

	d, err := limiter.Check(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
