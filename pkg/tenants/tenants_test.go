package tenants

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vberkoz/kvgate/pkg/plans"
	"github.com/vberkoz/kvgate/pkg/store"
)

func TestCreateGet(t *testing.T) {
	svc := NewService(store.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, &Tenant{ID: "t1", Email: "a@example.com", Plan: plans.TierPro}))

	got, err := svc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, plans.TierPro, got.Plan)
	assert.NotEmpty(t, got.CreatedAt)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreate_DefaultPlan(t *testing.T) {
	svc := NewService(store.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, &Tenant{ID: "t1", Email: "a@example.com"}))

	got, err := svc.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, plans.DefaultTier, got.Plan)
}

func TestCreate_DuplicateFails(t *testing.T) {
	svc := NewService(store.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, &Tenant{ID: "t1"}))
	err := svc.Create(ctx, &Tenant{ID: "t1"})
	assert.ErrorIs(t, err, store.ErrConditionFailed)
}

func TestGetByEmail(t *testing.T) {
	svc := NewService(store.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, &Tenant{ID: "t1", Email: "a@example.com"}))

	got, err := svc.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)

	_, err = svc.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnsure_Provisions(t *testing.T) {
	svc := NewService(store.NewMemoryStore())
	ctx := context.Background()

	tenant, err := svc.Ensure(ctx, "sub-123", "u@example.com")
	require.NoError(t, err)
	assert.Equal(t, "sub-123", tenant.ID)
	assert.Equal(t, plans.DefaultTier, tenant.Plan)

	// Existing profiles are returned untouched.
	again, err := svc.Ensure(ctx, "sub-123", "u@example.com")
	require.NoError(t, err)
	assert.Equal(t, tenant.CreatedAt, again.CreatedAt)
}

func TestEnsure_ConcurrentIdempotent(t *testing.T) {
	svc := NewService(store.NewMemoryStore())
	ctx := context.Background()

	const racers = 10
	var wg sync.WaitGroup
	results := make([]*Tenant, racers)
	errs := make([]error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Ensure(ctx, "sub-123", "u@example.com")
		}(i)
	}
	wg.Wait()

	for i := 0; i < racers; i++ {
		require.NoError(t, errs[i], "racer %d", i)
		require.NotNil(t, results[i])
		assert.Equal(t, "sub-123", results[i].ID)
	}
}
