// Package tenants manages tenant profiles: the account entities that own
// namespaces, credentials, and a plan tier. Profiles are created either
// explicitly or lazily on first successful bearer-token verification.
package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vberkoz/kvgate/pkg/plans"
	"github.com/vberkoz/kvgate/pkg/store"
)

// Tenant is one account.
type Tenant struct {
	ID          string     `json:"tenantId"`
	Email       string     `json:"email,omitempty"`
	Plan        plans.Tier `json:"plan"`
	TrialEndsAt string     `json:"trialEndsAt,omitempty"`
	CreatedAt   string     `json:"createdAt"`
	UpdatedAt   string     `json:"updatedAt"`
}

// Key shapes for tenant items.
func pkFor(tenantID string) string { return "TENANT#" + tenantID }

const skProfile = "PROFILE"

func emailGSI(email string) string { return "EMAIL#" + email }

// Service reads and writes tenant profiles.
type Service struct {
	store store.Store
}

// NewService creates a tenant service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Get returns the tenant profile, or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	item, err := s.store.Get(ctx, pkFor(tenantID), skProfile)
	if err != nil {
		return nil, err
	}
	return fromItem(item), nil
}

// GetByEmail resolves a tenant through the email secondary index.
func (s *Service) GetByEmail(ctx context.Context, email string) (*Tenant, error) {
	items, err := s.store.QueryIndex(ctx, emailGSI(email), skProfile)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, store.ErrNotFound
	}
	return fromItem(&items[0]), nil
}

// Create writes a new profile; the conditional put enforces one profile
// per tenant id. Email uniqueness rides on the secondary key shape.
func (s *Service) Create(ctx context.Context, tenant *Tenant) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if tenant.CreatedAt == "" {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now
	if tenant.Plan == "" {
		tenant.Plan = plans.DefaultTier
	}

	item := store.Item{
		PK:         pkFor(tenant.ID),
		SK:         skProfile,
		EntityType: store.EntityTenant,
		Attributes: map[string]any{
			"tenantId":  tenant.ID,
			"plan":      string(tenant.Plan),
			"createdAt": tenant.CreatedAt,
			"updatedAt": tenant.UpdatedAt,
		},
	}
	if tenant.Email != "" {
		item.GSI1PK = emailGSI(tenant.Email)
		item.GSI1SK = skProfile
		item.Attributes["email"] = tenant.Email
	}
	if tenant.TrialEndsAt != "" {
		item.Attributes["trialEndsAt"] = tenant.TrialEndsAt
	}

	if err := s.store.PutConditional(ctx, item); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return err
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// Ensure returns the profile for tenantID, provisioning one with the
// default plan when none exists. The subject id is the natural key, so a
// concurrent duplicate create is tolerated rather than treated as an
// error: the loser of the race re-reads the winner's row.
func (s *Service) Ensure(ctx context.Context, tenantID, email string) (*Tenant, error) {
	tenant, err := s.Get(ctx, tenantID)
	if err == nil {
		return tenant, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	fresh := &Tenant{ID: tenantID, Email: email, Plan: plans.DefaultTier}
	if err := s.Create(ctx, fresh); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return s.Get(ctx, tenantID)
		}
		return nil, err
	}
	return fresh, nil
}

func fromItem(item *store.Item) *Tenant {
	return &Tenant{
		ID:          item.Attr("tenantId"),
		Email:       item.Attr("email"),
		Plan:        plans.Tier(item.Attr("plan")),
		TrialEndsAt: item.Attr("trialEndsAt"),
		CreatedAt:   item.Attr("createdAt"),
		UpdatedAt:   item.Attr("updatedAt"),
	}
}
