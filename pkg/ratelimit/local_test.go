package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vberkoz/kvgate/pkg/plans"
)

func TestLocalLimiter_ExactlyOneDenialPastLimit(t *testing.T) {
	limiter := NewLocalLimiter()
	now := time.Unix(1_000_000, 0)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	limit := plans.Limits(plans.TierFree).RequestsPerSecond
	denied := 0
	for i := 0; i < limit+1; i++ {
		d, err := limiter.Check(ctx, "t1", plans.TierFree)
		require.NoError(t, err)
		if !d.Allowed {
			denied++
			assert.Equal(t, 0, d.Remaining)
			assert.GreaterOrEqual(t, d.RetryAfter, 1)
		}
	}
	assert.Equal(t, 1, denied)
}

func TestLocalLimiter_WindowReset(t *testing.T) {
	limiter := NewLocalLimiter()
	now := time.Unix(1_000_000, 0)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	limit := plans.Limits(plans.TierFree).RequestsPerSecond
	for i := 0; i < limit; i++ {
		d, err := limiter.Check(ctx, "t1", plans.TierFree)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := limiter.Check(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	now = now.Add(time.Second)
	d, err = limiter.Check(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "next window allows again")
	assert.Equal(t, limit-1, d.Remaining)
}

func TestLocalLimiter_TenantsIsolated(t *testing.T) {
	limiter := NewLocalLimiter()
	ctx := context.Background()

	limit := plans.Limits(plans.TierFree).RequestsPerSecond
	for i := 0; i < limit; i++ {
		_, err := limiter.Check(ctx, "t1", plans.TierFree)
		require.NoError(t, err)
	}

	d, err := limiter.Check(ctx, "t2", plans.TierFree)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "another tenant has its own budget")
}

func TestLocalLimiter_PlanBudgets(t *testing.T) {
	limiter := NewLocalLimiter()
	ctx := context.Background()

	d, err := limiter.Check(ctx, "t1", plans.TierBusiness)
	require.NoError(t, err)
	assert.Equal(t, plans.Limits(plans.TierBusiness).RequestsPerSecond, d.Limit)
	assert.Equal(t, d.Limit-1, d.Remaining)
}

func TestLocalLimiter_Cleanup(t *testing.T) {
	limiter := NewLocalLimiter()
	now := time.Unix(1_000_000, 0)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := limiter.Check(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	assert.Len(t, limiter.windows, 1)

	now = now.Add(10 * time.Minute)
	limiter.Cleanup(time.Minute)
	assert.Empty(t, limiter.windows)
}
