package auth

import (
	"context"
	"errors"
	"time"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/async"
	"github.com/vberkoz/kvgate/pkg/cache"
	"github.com/vberkoz/kvgate/pkg/credentials"
	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/plans"
	"github.com/vberkoz/kvgate/pkg/store"
	"github.com/vberkoz/kvgate/pkg/tenants"
)

const touchTimeout = 5 * time.Second

// APIKeyVerifier authenticates requests that present an API key secret.
// Verification hashes the secret and resolves the credential through the
// hash index; the plaintext is never stored or logged.
type APIKeyVerifier struct {
	creds     *credentials.Service
	tenants   *tenants.Service
	keygen    *credentials.KeyGenerator
	planCache *cache.Cache[plans.Tier]
	logger    *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewAPIKeyVerifier creates an API-key verifier. planCache holds resolved
// tenant plan tiers so hot keys skip the tenant profile read.
func NewAPIKeyVerifier(creds *credentials.Service, ten *tenants.Service, planCache *cache.Cache[plans.Tier], logger *observability.Logger, metrics *observability.Metrics) *APIKeyVerifier {
	return &APIKeyVerifier{
		creds:     creds,
		tenants:   ten,
		keygen:    credentials.NewKeyGenerator(),
		planCache: planCache,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Verify resolves an API-key secret to an identity. All failure paths
// return the same unauthorized error so callers cannot distinguish an
// unknown key from an expired one.
func (v *APIKeyVerifier) Verify(ctx context.Context, secret string) (*Identity, error) {
	unauthorized := apierr.Unauthorized("invalid API key")

	if err := v.keygen.ValidateFormat(secret); err != nil {
		v.fail("malformed")
		return nil, unauthorized
	}

	cred, err := v.creds.GetByHash(ctx, v.keygen.Hash(secret))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			v.fail("unknown")
			return nil, unauthorized
		}
		v.logger.WithError(err).Error("credential lookup failed")
		return nil, apierr.Internal()
	}

	now := v.now().UTC()
	if cred.Expired(now) {
		v.fail("expired")
		return nil, unauthorized
	}

	identity := &Identity{
		TenantID:     cred.TenantID,
		CredentialID: cred.ID,
		Permissions:  cred.Permissions,
		Plan:         v.resolvePlan(ctx, cred.TenantID, cred.Plan),
	}

	// Record last use off the request path; losing a touch is fine.
	async.SafeGoDetached(ctx, touchTimeout, "credential-touch", func(ctx context.Context) error {
		return v.creds.TouchLastUsed(ctx, cred.TenantID, cred.ID, now)
	})

	return identity, nil
}

// resolvePlan returns the tenant's plan tier, consulting the cache
// first. When the profile cannot be read, the plan stamped on the
// credential at issue time wins, then the free tier.
func (v *APIKeyVerifier) resolvePlan(ctx context.Context, tenantID string, stamped plans.Tier) plans.Tier {
	if tier, ok := v.planCache.Get(tenantID); ok {
		return tier
	}

	fallback := plans.DefaultTier
	if plans.Valid(stamped) {
		fallback = stamped
	}

	tenant, err := v.tenants.Get(ctx, tenantID)
	switch {
	case err == nil:
		v.planCache.Set(tenantID, tenant.Plan)
		return tenant.Plan
	case errors.Is(err, store.ErrNotFound):
		// Keys can predate the profile row.
		v.planCache.Set(tenantID, fallback)
		return fallback
	default:
		// Transient store failure: do not cache the fallback.
		v.logger.WithError(err).WithField("tenantId", tenantID).Warn("plan lookup failed, using fallback tier")
		return fallback
	}
}

func (v *APIKeyVerifier) fail(reason string) {
	if v.metrics != nil {
		v.metrics.AuthFailuresTotal.WithLabelValues("api_key").Inc()
	}
	v.logger.WithField("reason", reason).Debug("api key rejected")
}
