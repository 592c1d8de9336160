// Package plans defines the subscription tiers and the rate and quota
// limits attached to each. The numbers here are configuration, not
// contract: every consumer goes through Limits so a tier can be retuned
// in one place.
package plans

// Tier represents a subscription plan tier.
type Tier string

const (
	TierFree     Tier = "free"
	TierStarter  Tier = "starter"
	TierPro      Tier = "pro"
	TierScale    Tier = "scale"
	TierBusiness Tier = "business"
)

// DefaultTier is assigned on lazy tenant provisioning.
const DefaultTier = TierFree

// PlanLimits holds the per-tier limits.
type PlanLimits struct {
	// RequestsPerSecond is the fixed per-second rate-limit window budget.
	RequestsPerSecond int
	// Burst allows short spikes above the steady rate.
	Burst int
	// MonthlyRequests is the monthly request quota.
	MonthlyRequests int64
	// StorageBytes is the monthly stored-byte ceiling.
	StorageBytes int64
}

var limits = map[Tier]PlanLimits{
	TierFree:     {RequestsPerSecond: 10, Burst: 20, MonthlyRequests: 100_000, StorageBytes: 10 << 30},
	TierStarter:  {RequestsPerSecond: 50, Burst: 100, MonthlyRequests: 500_000, StorageBytes: 25 << 30},
	TierPro:      {RequestsPerSecond: 100, Burst: 200, MonthlyRequests: 1_000_000, StorageBytes: 100 << 30},
	TierScale:    {RequestsPerSecond: 500, Burst: 1000, MonthlyRequests: 5_000_000, StorageBytes: 250 << 30},
	TierBusiness: {RequestsPerSecond: 1000, Burst: 2000, MonthlyRequests: 20_000_000, StorageBytes: 1 << 40},
}

// Limits returns the limits for a tier. Unknown tiers fall back to free so
// a tenant row with a stale plan string degrades instead of failing.
func Limits(tier Tier) PlanLimits {
	if l, ok := limits[tier]; ok {
		return l
	}
	return limits[TierFree]
}

// Valid reports whether the tier is a known plan.
func Valid(tier Tier) bool {
	_, ok := limits[tier]
	return ok
}
