// Package usage meters tenant requests against monthly plan quotas.
// Counters are stored per tenant per calendar month and advanced with
// atomic increments, never read-then-write, so concurrent stateless
// instances count correctly.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vberkoz/kvgate/pkg/async"
	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/plans"
	"github.com/vberkoz/kvgate/pkg/store"
)

const (
	attrRequestCount = "requestCount"
	attrStorageBytes = "storageBytes"

	// DefaultAlertThresholdPercent is the quota consumption at which the
	// tenant is notified.
	DefaultAlertThresholdPercent = 80

	// alertDeliveryTimeout bounds one alert delivery, webhook retries
	// included.
	alertDeliveryTimeout = 2 * time.Minute
)

// Notifier delivers usage-threshold alerts. Delivery runs detached from
// the request that crossed the threshold and is best effort: a failed
// delivery is logged, not re-fired.
type Notifier interface {
	NotifyThreshold(ctx context.Context, tenantID string, percent int, used, limit int64) error
}

// LogNotifier writes threshold alerts to the service log. The default
// when no delivery channel is configured.
type LogNotifier struct {
	Logger *observability.Logger
}

func (n *LogNotifier) NotifyThreshold(_ context.Context, tenantID string, percent int, used, limit int64) error {
	n.Logger.WithFields(map[string]interface{}{
		"tenantId": tenantID,
		"percent":  percent,
		"used":     used,
		"limit":    limit,
	}).Warn("tenant crossed usage threshold")
	return nil
}

// Meter records and reports per-tenant monthly usage.
type Meter struct {
	store            store.Store
	notifier         Notifier
	logger           *observability.Logger
	metrics          *observability.Metrics
	thresholdPercent int
	now              func() time.Time
}

// NewMeter creates a usage meter. notifier may be nil to disable alerts.
func NewMeter(s store.Store, notifier Notifier, logger *observability.Logger, metrics *observability.Metrics) *Meter {
	return &Meter{
		store:            s,
		notifier:         notifier,
		logger:           logger,
		metrics:          metrics,
		thresholdPercent: DefaultAlertThresholdPercent,
		now:              time.Now,
	}
}

// SetAlertThreshold overrides the default alert percentage. Zero
// disables alerts.
func (m *Meter) SetAlertThreshold(percent int) {
	m.thresholdPercent = percent
}

func pkFor(tenantID string) string { return "TENANT#" + tenantID }

// MonthKey returns the usage sort key for the month containing t.
func MonthKey(t time.Time) string {
	return "USAGE#" + t.UTC().Format("2006-01")
}

// Record counts one request against the tenant's current month and fires
// a threshold alert when the increment crosses the configured percentage
// of the plan quota. Crossing is detected from the increment's return
// value, so exactly one request triggers the alert.
func (m *Meter) Record(ctx context.Context, tenantID string, plan plans.Tier) error {
	newCount, err := m.store.IncrementCounter(ctx, pkFor(tenantID), MonthKey(m.now()), attrRequestCount, 1)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}

	limit := plans.Limits(plan).MonthlyRequests
	threshold := limit * int64(m.thresholdPercent) / 100
	if threshold <= 0 || m.notifier == nil {
		return nil
	}

	previous := newCount - 1
	if previous < threshold && newCount >= threshold {
		if m.metrics != nil {
			m.metrics.UsageAlertsTotal.Inc()
		}
		percent := int(newCount * 100 / limit)
		// A slow or dead alert endpoint must not hold the request that
		// crossed the threshold.
		async.SafeGoDetached(ctx, alertDeliveryTimeout, "usage-alert", func(ctx context.Context) error {
			if err := m.notifier.NotifyThreshold(ctx, tenantID, percent, newCount, limit); err != nil {
				m.logger.WithError(err).WithField("tenantId", tenantID).Error("usage alert delivery failed")
			}
			return nil
		})
	}
	return nil
}

// AddStorageBytes adjusts the tenant's stored-bytes counter for the
// current month. delta may be negative on deletes.
func (m *Meter) AddStorageBytes(ctx context.Context, tenantID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	if _, err := m.store.IncrementCounter(ctx, pkFor(tenantID), MonthKey(m.now()), attrStorageBytes, delta); err != nil {
		return fmt.Errorf("adjust storage bytes: %w", err)
	}
	return nil
}

// CheckQuota reports whether the tenant is under its monthly request
// quota. Runs before the handler; a tenant at or above quota is refused
// without being counted.
func (m *Meter) CheckQuota(ctx context.Context, tenantID string, plan plans.Tier) (bool, error) {
	item, err := m.store.Get(ctx, pkFor(tenantID), MonthKey(m.now()))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("read usage: %w", err)
	}
	return item.AttrInt64(attrRequestCount) < plans.Limits(plan).MonthlyRequests, nil
}

// Snapshot is the current month's usage against plan limits.
type Snapshot struct {
	Month           string `json:"month"`
	RequestCount    int64  `json:"requestCount"`
	RequestLimit    int64  `json:"requestLimit"`
	StorageBytes    int64  `json:"storageBytes"`
	StorageLimit    int64  `json:"storageLimit"`
	PercentUsed     int    `json:"percentUsed"`
	RequestsPerSec  int    `json:"requestsPerSecond"`
	BurstPerSec     int    `json:"burstPerSecond"`
}

// Snapshot reports the tenant's usage for the current month.
func (m *Meter) Snapshot(ctx context.Context, tenantID string, plan plans.Tier) (*Snapshot, error) {
	limits := plans.Limits(plan)
	snap := &Snapshot{
		Month:          m.now().UTC().Format("2006-01"),
		RequestLimit:   limits.MonthlyRequests,
		StorageLimit:   limits.StorageBytes,
		RequestsPerSec: limits.RequestsPerSecond,
		BurstPerSec:    limits.Burst,
	}

	item, err := m.store.Get(ctx, pkFor(tenantID), MonthKey(m.now()))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return snap, nil
		}
		return nil, fmt.Errorf("read usage: %w", err)
	}
	snap.RequestCount = item.AttrInt64(attrRequestCount)
	snap.StorageBytes = item.AttrInt64(attrStorageBytes)
	if snap.RequestLimit > 0 {
		snap.PercentUsed = int(snap.RequestCount * 100 / snap.RequestLimit)
	}
	return snap, nil
}

// Sweep deletes usage counters older than keepMonths calendar months,
// returning how many were removed. The current month counts as one.
func (m *Meter) Sweep(ctx context.Context, keepMonths int) (int, error) {
	if keepMonths < 1 {
		keepMonths = 1
	}
	now := m.now().UTC()
	cutoff := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(keepMonths - 1), 0)

	items, err := m.store.ScanEntity(ctx, store.EntityUsage)
	if err != nil {
		return 0, fmt.Errorf("scan usage counters: %w", err)
	}

	removed := 0
	for _, item := range items {
		raw := strings.TrimPrefix(item.SK, "USAGE#")
		month, err := time.Parse("2006-01", raw)
		if err != nil {
			m.logger.WithField("sk", item.SK).Warn("skipping malformed usage key")
			continue
		}
		if month.Before(cutoff) {
			if err := m.store.Delete(ctx, item.PK, item.SK); err != nil {
				return removed, fmt.Errorf("delete usage counter %s/%s: %w", item.PK, item.SK, err)
			}
			removed++
		}
	}
	return removed, nil
}
