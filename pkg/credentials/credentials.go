// Package credentials manages tenant API keys: issuance, listing,
// revocation, and rotation. Secrets are returned to the caller exactly
// once at issue time; only their SHA-256 hashes are persisted.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/plans"
	"github.com/vberkoz/kvgate/pkg/store"
	"github.com/vberkoz/kvgate/pkg/validation"
)

// Permission is an operation class an API key is allowed to perform.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionWrite  Permission = "write"
	PermissionDelete Permission = "delete"
)

// ValidPermission reports whether p is a known permission.
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionRead, PermissionWrite, PermissionDelete:
		return true
	}
	return false
}

// Credential is a stored API key record. KeyHash is the SHA-256 of the
// secret; the plaintext is never persisted.
type Credential struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenantId"`
	Name        string       `json:"name"`
	KeyHash     string       `json:"-"`
	KeyPrefix   string       `json:"keyPrefix"`
	Permissions []Permission `json:"permissions"`
	// Plan is the tenant's tier at issue time, used as a fallback when
	// the tenant profile cannot be read during verification.
	Plan        plans.Tier   `json:"plan,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	ExpiresAt   *time.Time   `json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time   `json:"lastUsedAt,omitempty"`
}

// Expired reports whether the credential has an expiry in the past.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Allows reports whether the credential grants the given permission.
// An empty permission set means unrestricted access.
func (c *Credential) Allows(p Permission) bool {
	if len(c.Permissions) == 0 {
		return true
	}
	for _, granted := range c.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

func pkFor(tenantID string) string  { return "TENANT#" + tenantID }
func skFor(credID string) string    { return "CRED#" + credID }
func hashGSI(keyHash string) string { return "CREDHASH#" + keyHash }

// Service implements credential lifecycle operations on top of the store.
type Service struct {
	store  store.Store
	keygen *KeyGenerator
	now    func() time.Time
}

// NewService creates a credential service.
func NewService(s store.Store) *Service {
	return &Service{store: s, keygen: NewKeyGenerator(), now: time.Now}
}

// IssueResult carries the one-time plaintext secret alongside the stored
// credential metadata.
type IssueResult struct {
	Credential *Credential
	Secret     string
}

// Issue creates a new API key for a tenant. The returned secret is shown
// once and cannot be recovered afterwards.
func (s *Service) Issue(ctx context.Context, tenantID, name string, plan plans.Tier, permissions []Permission, expiresAt *time.Time) (*IssueResult, error) {
	if err := validation.CredentialName(name); err != nil {
		return nil, err
	}
	for _, p := range permissions {
		if !ValidPermission(p) {
			return nil, apierr.Validation(fmt.Sprintf("unknown permission %q", p))
		}
	}
	now := s.now().UTC()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, apierr.Validation("expiresAt must be in the future")
	}

	secret, hash, prefix, err := s.keygen.Generate()
	if err != nil {
		return nil, err
	}

	cred := &Credential{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        name,
		KeyHash:     hash,
		KeyPrefix:   prefix,
		Permissions: permissions,
		Plan:        plan,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	if err := s.store.PutConditional(ctx, s.toItem(cred)); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, apierr.Conflict("credential id collision, retry the request")
		}
		return nil, fmt.Errorf("store credential: %w", err)
	}
	return &IssueResult{Credential: cred, Secret: secret}, nil
}

// List returns all credentials for a tenant, metadata only. Secrets are
// not recoverable.
func (s *Service) List(ctx context.Context, tenantID string) ([]*Credential, error) {
	items, err := s.store.Query(ctx, pkFor(tenantID), "CRED#")
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	creds := make([]*Credential, 0, len(items))
	for i := range items {
		creds = append(creds, s.fromItem(&items[i]))
	}
	return creds, nil
}

// Get fetches a single credential owned by the tenant.
func (s *Service) Get(ctx context.Context, tenantID, credID string) (*Credential, error) {
	item, err := s.store.Get(ctx, pkFor(tenantID), skFor(credID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.NotFound("credential not found")
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return s.fromItem(item), nil
}

// GetByHash resolves a credential from the hash of a presented secret.
// Returns store.ErrNotFound if no credential carries that hash.
func (s *Service) GetByHash(ctx context.Context, keyHash string) (*Credential, error) {
	items, err := s.store.QueryIndex(ctx, hashGSI(keyHash), "")
	if err != nil {
		return nil, fmt.Errorf("lookup credential by hash: %w", err)
	}
	if len(items) == 0 {
		return nil, store.ErrNotFound
	}
	return s.fromItem(&items[0]), nil
}

// Revoke deletes a credential. Subsequent requests with its secret fail
// authentication immediately.
func (s *Service) Revoke(ctx context.Context, tenantID, credID string) error {
	if _, err := s.Get(ctx, tenantID, credID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, pkFor(tenantID), skFor(credID)); err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	return nil
}

// Rotate replaces a credential's secret in place. The credential id,
// name, and permission set are retained; the old secret stops working
// and lastUsedAt is cleared.
func (s *Service) Rotate(ctx context.Context, tenantID, credID string) (*IssueResult, error) {
	cred, err := s.Get(ctx, tenantID, credID)
	if err != nil {
		return nil, err
	}

	secret, hash, prefix, err := s.keygen.Generate()
	if err != nil {
		return nil, err
	}
	cred.KeyHash = hash
	cred.KeyPrefix = prefix
	cred.LastUsedAt = nil

	if err := s.store.Put(ctx, s.toItem(cred)); err != nil {
		return nil, fmt.Errorf("rotate credential: %w", err)
	}
	return &IssueResult{Credential: cred, Secret: secret}, nil
}

// TouchLastUsed records when a credential last authenticated a request.
// Best-effort: callers run it asynchronously and tolerate failure.
func (s *Service) TouchLastUsed(ctx context.Context, tenantID, credID string, at time.Time) error {
	err := s.store.SetAttributes(ctx, pkFor(tenantID), skFor(credID), map[string]any{
		"lastUsedAt": at.UTC().Format(time.RFC3339Nano),
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("touch credential: %w", err)
	}
	return nil
}

func (s *Service) toItem(c *Credential) store.Item {
	perms := make([]string, len(c.Permissions))
	for i, p := range c.Permissions {
		perms[i] = string(p)
	}
	attrs := map[string]any{
		"id":          c.ID,
		"tenantId":    c.TenantID,
		"name":        c.Name,
		"keyHash":     c.KeyHash,
		"keyPrefix":   c.KeyPrefix,
		"permissions": perms,
		"plan":        string(c.Plan),
		"createdAt":   c.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if c.ExpiresAt != nil {
		attrs["expiresAt"] = c.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	if c.LastUsedAt != nil {
		attrs["lastUsedAt"] = c.LastUsedAt.UTC().Format(time.RFC3339Nano)
	}
	return store.Item{
		PK:         pkFor(c.TenantID),
		SK:         skFor(c.ID),
		GSI1PK:     hashGSI(c.KeyHash),
		GSI1SK:     "METADATA",
		EntityType: store.EntityCredential,
		Attributes: attrs,
	}
}

func (s *Service) fromItem(item *store.Item) *Credential {
	cred := &Credential{
		ID:        item.Attr("id"),
		TenantID:  item.Attr("tenantId"),
		Name:      item.Attr("name"),
		KeyHash:   item.Attr("keyHash"),
		KeyPrefix: item.Attr("keyPrefix"),
		Plan:      plans.Tier(item.Attr("plan")),
	}
	for _, p := range item.AttrStrings("permissions") {
		cred.Permissions = append(cred.Permissions, Permission(p))
	}
	if ts, err := time.Parse(time.RFC3339Nano, item.Attr("createdAt")); err == nil {
		cred.CreatedAt = ts
	}
	if raw := item.Attr("expiresAt"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			cred.ExpiresAt = &ts
		}
	}
	if raw := item.Attr("lastUsedAt"); raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			cred.LastUsedAt = &ts
		}
	}
	return cred
}
