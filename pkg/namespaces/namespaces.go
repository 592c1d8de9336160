// Package namespaces manages the isolated key spaces tenants store data
// in. Namespace names are globally unique; ownership is enforced on
// every data operation.
package namespaces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/store"
	"github.com/vberkoz/kvgate/pkg/validation"
)

// Namespace is one tenant-owned key space.
type Namespace struct {
	Name      string    `json:"namespace"`
	TenantID  string    `json:"tenantId"`
	CreatedAt time.Time `json:"createdAt"`
}

func pkFor(name string) string         { return "NS#" + name }
func tenantGSI(tenantID string) string { return "TENANT#" + tenantID }

const skMetadata = "METADATA"

// Service implements namespace lifecycle operations.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a namespace service.
func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// Create registers a namespace for the tenant. Names are claimed
// first-writer-wins with a conditional put; a name already taken by any
// tenant is a conflict.
func (s *Service) Create(ctx context.Context, tenantID, name string) (*Namespace, error) {
	if err := validation.Namespace(name); err != nil {
		return nil, err
	}

	ns := &Namespace{
		Name:      name,
		TenantID:  tenantID,
		CreatedAt: s.now().UTC(),
	}
	item := store.Item{
		PK:         pkFor(name),
		SK:         skMetadata,
		GSI1PK:     tenantGSI(tenantID),
		GSI1SK:     pkFor(name),
		EntityType: store.EntityNamespace,
		Attributes: map[string]any{
			"namespace": ns.Name,
			"tenantId":  ns.TenantID,
			"createdAt": ns.CreatedAt.Format(time.RFC3339),
		},
	}
	if err := s.store.PutConditional(ctx, item); err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return nil, apierr.Conflict(fmt.Sprintf("namespace %q already exists", name))
		}
		return nil, fmt.Errorf("create namespace: %w", err)
	}
	return ns, nil
}

// Get returns the namespace metadata, or a not-found error.
func (s *Service) Get(ctx context.Context, name string) (*Namespace, error) {
	item, err := s.store.Get(ctx, pkFor(name), skMetadata)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.NotFound(fmt.Sprintf("namespace %q not found", name))
		}
		return nil, fmt.Errorf("get namespace: %w", err)
	}
	return fromItem(item), nil
}

// Authorize returns the namespace if the tenant owns it. A namespace
// owned by someone else reads as not found, so names cannot be probed.
func (s *Service) Authorize(ctx context.Context, tenantID, name string) (*Namespace, error) {
	ns, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if ns.TenantID != tenantID {
		return nil, apierr.NotFound(fmt.Sprintf("namespace %q not found", name))
	}
	return ns, nil
}

// List returns all namespaces owned by the tenant, in name order.
func (s *Service) List(ctx context.Context, tenantID string) ([]*Namespace, error) {
	items, err := s.store.QueryIndex(ctx, tenantGSI(tenantID), "NS#")
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	out := make([]*Namespace, 0, len(items))
	for i := range items {
		out = append(out, fromItem(&items[i]))
	}
	return out, nil
}

func fromItem(item *store.Item) *Namespace {
	ns := &Namespace{
		Name:     item.Attr("namespace"),
		TenantID: item.Attr("tenantId"),
	}
	if ts, err := time.Parse(time.RFC3339, item.Attr("createdAt")); err == nil {
		ns.CreatedAt = ts
	}
	return ns
}
