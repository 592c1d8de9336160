package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/vberkoz/kvgate/pkg/plans"
)

// LocalLimiter keeps one counter/window-start pair per tenant in process
// memory. Counters are per-process: in a multi-instance deployment each
// instance enforces the budget independently, so the effective limit is
// approximate. Use RedisLimiter when exact cross-instance limiting is
// required.
type LocalLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// NewLocalLimiter creates an in-process limiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check consumes one unit of the tenant's one-second budget.
func (l *LocalLimiter) Check(_ context.Context, tenantID string, plan plans.Tier) (Decision, error) {
	limits := plans.Limits(plan)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[tenantID]
	if !ok || now.Sub(w.start) >= time.Second {
		w = &window{start: now}
		l.windows[tenantID] = w
	}

	reset := w.start.Add(time.Second)
	decision := Decision{
		Limit:      limits.RequestsPerSecond,
		ResetEpoch: reset.Unix(),
	}

	if w.count >= limits.RequestsPerSecond {
		decision.Remaining = 0
		decision.RetryAfter = retryAfterSeconds(reset.Sub(now))
		return decision, nil
	}

	w.count++
	decision.Allowed = true
	decision.Remaining = limits.RequestsPerSecond - w.count
	return decision, nil
}

// Cleanup drops windows idle for longer than maxIdle.
func (l *LocalLimiter) Cleanup(maxIdle time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for tenantID, w := range l.windows {
		if now.Sub(w.start) > maxIdle {
			delete(l.windows, tenantID)
		}
	}
}

// StartCleanup runs Cleanup on the given interval until ctx is done.
func (l *LocalLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup(interval)
			}
		}
	}()
}

// retryAfterSeconds rounds a wait up to whole seconds, minimum one.
func retryAfterSeconds(wait time.Duration) int {
	secs := int((wait + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
