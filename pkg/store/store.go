// Package store defines the narrow contract against the external
// key-sorted table and provides the backends that implement it.
//
// All entities share one table, disambiguated by a composite key and an
// entity-kind tag; a single secondary index (GSI1) provides reverse
// lookups. Business code never issues store-specific query language:
// everything goes through this contract, so the backend is substitutable.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no item exists under the key.
	ErrNotFound = errors.New("store: item not found")
	// ErrConditionFailed is returned by PutConditional when the key
	// already exists. Unique-create callers map it to a conflict.
	ErrConditionFailed = errors.New("store: conditional check failed")
)

// Entity kinds stamped on every item.
const (
	EntityTenant     = "TENANT"
	EntityCredential = "CREDENTIAL"
	EntityNamespace  = "NAMESPACE"
	EntityKey        = "KEY"
	EntityUsage      = "USAGE"
)

// Item is one row of the table. PK/SK form the primary key; GSI1PK/GSI1SK,
// when set, place the item on the secondary index. Attributes carries the
// entity payload as plain JSON-compatible values.
type Item struct {
	PK         string
	SK         string
	GSI1PK     string
	GSI1SK     string
	EntityType string
	Attributes map[string]any
}

// Attr returns a string attribute, or "" when absent or not a string.
func (i *Item) Attr(name string) string {
	if v, ok := i.Attributes[name].(string); ok {
		return v
	}
	return ""
}

// AttrInt64 returns a numeric attribute as int64, tolerating the float64
// that JSON round-tripping produces.
func (i *Item) AttrInt64(name string) int64 {
	switch v := i.Attributes[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// AttrStrings returns a string-slice attribute, tolerating []any payloads.
func (i *Item) AttrStrings(name string) []string {
	switch v := i.Attributes[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Store is the contract the pipeline, verifiers, meter, and business
// handlers depend on.
type Store interface {
	// Put writes an item unconditionally (last-writer-wins upsert).
	Put(ctx context.Context, item Item) error

	// PutConditional writes an item only if nothing exists under its
	// primary key; returns ErrConditionFailed otherwise. Used for
	// unique-create (namespaces, tenant profiles).
	PutConditional(ctx context.Context, item Item) error

	// Get reads one item; ErrNotFound when absent.
	Get(ctx context.Context, pk, sk string) (*Item, error)

	// Delete removes one item. Deleting an absent item is not an error.
	Delete(ctx context.Context, pk, sk string) error

	// Query returns all items under pk whose SK begins with skPrefix,
	// sorted ascending by SK.
	Query(ctx context.Context, pk, skPrefix string) ([]Item, error)

	// QueryIndex is Query against the secondary index.
	QueryIndex(ctx context.Context, gsi1pk, gsi1skPrefix string) ([]Item, error)

	// IncrementCounter atomically adds delta to a numeric attribute,
	// creating the item if absent, and returns the post-increment value.
	// Never implemented as read-then-write.
	IncrementCounter(ctx context.Context, pk, sk, attribute string, delta int64) (int64, error)

	// SetAttributes updates individual attributes on an existing item
	// without touching the rest.
	SetAttributes(ctx context.Context, pk, sk string, attrs map[string]any) error

	// ScanEntity returns every item of the given entity kind. Expensive;
	// reserved for the retention sweeper.
	ScanEntity(ctx context.Context, entityType string) ([]Item, error)

	// HealthCheck verifies backend connectivity.
	HealthCheck(ctx context.Context) error
}
