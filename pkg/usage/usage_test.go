package usage

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/plans"
	"github.com/vberkoz/kvgate/pkg/store"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls []int64
}

func (n *recordingNotifier) NotifyThreshold(_ context.Context, _ string, _ int, used, _ int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, used)
	return nil
}

func (n *recordingNotifier) snapshot() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int64(nil), n.calls...)
}

// blockingNotifier parks deliveries until released.
type blockingNotifier struct {
	release chan struct{}
}

func (n *blockingNotifier) NotifyThreshold(ctx context.Context, _ string, _ int, _, _ int64) error {
	select {
	case <-n.release:
	case <-ctx.Done():
	}
	return nil
}

func newMeterFixture(notifier Notifier) (*Meter, *store.MemoryStore) {
	st := store.NewMemoryStore()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewMeter(st, notifier, logger, nil), st
}

func TestMonthKey(t *testing.T) {
	at := time.Date(2026, time.August, 30, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "USAGE#2026-08", MonthKey(at))
}

func TestRecord_CountsExactlyOncePerCall(t *testing.T) {
	meter, st := newMeterFixture(nil)
	ctx := context.Background()

	const calls = 50
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, meter.Record(ctx, "t1", plans.TierFree))
		}()
	}
	wg.Wait()

	item, err := st.Get(ctx, "TENANT#t1", MonthKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(calls), item.AttrInt64("requestCount"))
}

func TestRecord_ThresholdAlertFiresOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	meter, _ := newMeterFixture(notifier)
	ctx := context.Background()

	// Tiny synthetic plan boundary: with the free quota of 100k the 80%
	// threshold sits at 80000; crossing it sequentially must fire once.
	meter.SetAlertThreshold(80)
	quota := plans.Limits(plans.TierFree).MonthlyRequests
	threshold := quota * 80 / 100

	// Jump the counter to just below the threshold, then cross it.
	_, err := meter.store.IncrementCounter(ctx, "TENANT#t1", MonthKey(time.Now()), attrRequestCount, threshold-2)
	require.NoError(t, err)

	require.NoError(t, meter.Record(ctx, "t1", plans.TierFree)) // threshold-1
	require.NoError(t, meter.Record(ctx, "t1", plans.TierFree)) // threshold: fires
	require.NoError(t, meter.Record(ctx, "t1", plans.TierFree)) // threshold+1: silent

	// Delivery is detached from Record; wait for it to land.
	require.Eventually(t, func() bool {
		return len(notifier.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond) // a second delivery would surface here
	assert.Equal(t, []int64{threshold}, notifier.snapshot())
}

func TestRecord_SlowNotifierDoesNotBlock(t *testing.T) {
	notifier := &blockingNotifier{release: make(chan struct{})}
	meter, _ := newMeterFixture(notifier)
	ctx := context.Background()

	threshold := plans.Limits(plans.TierFree).MonthlyRequests * 80 / 100
	_, err := meter.store.IncrementCounter(ctx, "TENANT#t1", MonthKey(time.Now()), attrRequestCount, threshold-1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- meter.Record(ctx, "t1", plans.TierFree) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Record blocked on alert delivery")
	}
	close(notifier.release)
}

func TestRecord_ZeroThresholdDisablesAlerts(t *testing.T) {
	notifier := &recordingNotifier{}
	meter, _ := newMeterFixture(notifier)
	meter.SetAlertThreshold(0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, meter.Record(ctx, "t1", plans.TierFree))
	}
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, notifier.snapshot())
}

func TestCheckQuota(t *testing.T) {
	meter, st := newMeterFixture(nil)
	ctx := context.Background()

	// No counter yet: under quota.
	ok, err := meter.CheckQuota(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	assert.True(t, ok)

	quota := plans.Limits(plans.TierFree).MonthlyRequests
	_, err = st.IncrementCounter(ctx, "TENANT#t1", MonthKey(time.Now()), attrRequestCount, quota-1)
	require.NoError(t, err)

	ok, err = meter.CheckQuota(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	assert.True(t, ok, "one under quota is allowed")

	_, err = st.IncrementCounter(ctx, "TENANT#t1", MonthKey(time.Now()), attrRequestCount, 1)
	require.NoError(t, err)

	ok, err = meter.CheckQuota(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	assert.False(t, ok, "at quota is refused")
}

func TestAddStorageBytes(t *testing.T) {
	meter, st := newMeterFixture(nil)
	ctx := context.Background()

	require.NoError(t, meter.AddStorageBytes(ctx, "t1", 1024))
	require.NoError(t, meter.AddStorageBytes(ctx, "t1", -256))
	require.NoError(t, meter.AddStorageBytes(ctx, "t1", 0))

	item, err := st.Get(ctx, "TENANT#t1", MonthKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(768), item.AttrInt64(attrStorageBytes))
}

func TestSnapshot(t *testing.T) {
	meter, _ := newMeterFixture(nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, meter.Record(ctx, "t1", plans.TierFree))
	}
	require.NoError(t, meter.AddStorageBytes(ctx, "t1", 2048))

	snap, err := meter.Snapshot(ctx, "t1", plans.TierFree)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.RequestCount)
	assert.Equal(t, int64(2048), snap.StorageBytes)
	assert.Equal(t, plans.Limits(plans.TierFree).MonthlyRequests, snap.RequestLimit)

	// Unmetered tenant gets an empty snapshot, not an error.
	empty, err := meter.Snapshot(ctx, "nobody", plans.TierFree)
	require.NoError(t, err)
	assert.Zero(t, empty.RequestCount)
}

func TestSweep(t *testing.T) {
	meter, st := newMeterFixture(nil)
	ctx := context.Background()

	now := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)
	meter.now = func() time.Time { return now }

	for _, month := range []string{"2026-08", "2026-07", "2026-06", "2026-01"} {
		_, err := st.IncrementCounter(ctx, "TENANT#t1", "USAGE#"+month, attrRequestCount, 1)
		require.NoError(t, err)
	}

	removed, err := meter.Sweep(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "months before 2026-07 are swept")

	_, err = st.Get(ctx, "TENANT#t1", "USAGE#2026-08")
	assert.NoError(t, err)
	_, err = st.Get(ctx, "TENANT#t1", "USAGE#2026-07")
	assert.NoError(t, err)
	_, err = st.Get(ctx, "TENANT#t1", "USAGE#2026-06")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
