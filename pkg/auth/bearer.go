package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/tenants"
)

// TokenClaims is the subset of ID-token claims the service needs.
type TokenClaims struct {
	Subject string
	Email   string
}

// TokenVerifier validates a raw bearer token and extracts its claims.
// The production implementation wraps an OIDC ID-token verifier; tests
// substitute a static one.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, rawToken string) (*TokenClaims, error)
}

// OIDCConfig configures discovery against the identity provider.
type OIDCConfig struct {
	IssuerURL string
	ClientID  string
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer and returns a TokenVerifier that
// checks signature, issuer, audience, and expiry.
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (TokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return &oidcVerifier{verifier: verifier}, nil
}

func (v *oidcVerifier) VerifyToken(ctx context.Context, rawToken string) (*TokenClaims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("verify ID token: %w", err)
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse token claims: %w", err)
	}
	return &TokenClaims{Subject: idToken.Subject, Email: claims.Email}, nil
}

// BearerVerifier authenticates management requests carrying an OIDC
// bearer token. The token subject is the tenant id; a profile row is
// provisioned lazily on first verification.
type BearerVerifier struct {
	tokens  TokenVerifier
	tenants *tenants.Service
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewBearerVerifier creates a bearer-token verifier.
func NewBearerVerifier(tokens TokenVerifier, ten *tenants.Service, logger *observability.Logger, metrics *observability.Metrics) *BearerVerifier {
	return &BearerVerifier{tokens: tokens, tenants: ten, logger: logger, metrics: metrics}
}

// Verify validates the token and resolves it to an identity. Identities
// from bearer tokens carry no permission restrictions.
func (v *BearerVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	claims, err := v.tokens.VerifyToken(ctx, rawToken)
	if err != nil {
		v.fail(err, "bearer token rejected")
		return nil, apierr.Unauthorized("invalid bearer token")
	}
	if claims.Subject == "" {
		v.fail(nil, "bearer token missing subject")
		return nil, apierr.Unauthorized("invalid bearer token")
	}

	tenant, err := v.tenants.Ensure(ctx, claims.Subject, claims.Email)
	if err != nil {
		v.logger.WithError(err).WithField("tenantId", claims.Subject).Error("tenant provisioning failed")
		return nil, apierr.Internal()
	}

	return &Identity{
		TenantID: tenant.ID,
		Email:    tenant.Email,
		Plan:     tenant.Plan,
	}, nil
}

func (v *BearerVerifier) fail(err error, message string) {
	if v.metrics != nil {
		v.metrics.AuthFailuresTotal.WithLabelValues("bearer").Inc()
	}
	log := v.logger
	if err != nil {
		log = log.WithError(err)
	}
	log.Debug(message)
}
