package namespaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/store"
	"github.com/vberkoz/kvgate/pkg/validation"
)

// Record is one key/value pair inside a namespace. Value is arbitrary
// JSON supplied by the tenant.
type Record struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	SizeBytes int64           `json:"sizeBytes"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// RecordSummary is the listing shape: key and timestamps, no value.
type RecordSummary struct {
	Key       string    `json:"key"`
	SizeBytes int64     `json:"sizeBytes"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func skKey(key string) string { return "KEY#" + key }

// PutRecord upserts a value under a key. Returns the stored record and
// the storage-byte delta against whatever the key held before, for the
// caller to meter.
func (s *Service) PutRecord(ctx context.Context, tenantID, namespace, key string, value json.RawMessage) (*Record, int64, error) {
	if _, err := s.Authorize(ctx, tenantID, namespace); err != nil {
		return nil, 0, err
	}
	if err := validation.Key(key); err != nil {
		return nil, 0, err
	}
	valueLen, err := validation.Value(value)
	if err != nil {
		return nil, 0, err
	}
	size := int64(valueLen)

	now := s.now().UTC()
	rec := &Record{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		SizeBytes: size,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var previousSize int64
	if existing, err := s.store.Get(ctx, pkFor(namespace), skKey(key)); err == nil {
		previousSize = existing.AttrInt64("sizeBytes")
		if ts, perr := time.Parse(time.RFC3339, existing.Attr("createdAt")); perr == nil {
			rec.CreatedAt = ts
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, 0, fmt.Errorf("read existing record: %w", err)
	}

	item := store.Item{
		PK:         pkFor(namespace),
		SK:         skKey(key),
		EntityType: store.EntityKey,
		Attributes: map[string]any{
			"key":       key,
			"value":     string(value),
			"sizeBytes": size,
			"createdAt": rec.CreatedAt.Format(time.RFC3339),
			"updatedAt": rec.UpdatedAt.Format(time.RFC3339),
		},
	}
	if err := s.store.Put(ctx, item); err != nil {
		return nil, 0, fmt.Errorf("put record: %w", err)
	}
	return rec, size - previousSize, nil
}

// GetRecord fetches a value by key.
func (s *Service) GetRecord(ctx context.Context, tenantID, namespace, key string) (*Record, error) {
	if _, err := s.Authorize(ctx, tenantID, namespace); err != nil {
		return nil, err
	}
	if err := validation.Key(key); err != nil {
		return nil, err
	}

	item, err := s.store.Get(ctx, pkFor(namespace), skKey(key))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierr.NotFound(fmt.Sprintf("key %q not found", key))
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return recordFromItem(namespace, item), nil
}

// DeleteRecord removes a key. Returns the freed byte count for the
// caller to meter; deleting an absent key is a not-found error.
func (s *Service) DeleteRecord(ctx context.Context, tenantID, namespace, key string) (int64, error) {
	if _, err := s.Authorize(ctx, tenantID, namespace); err != nil {
		return 0, err
	}
	if err := validation.Key(key); err != nil {
		return 0, err
	}

	item, err := s.store.Get(ctx, pkFor(namespace), skKey(key))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, apierr.NotFound(fmt.Sprintf("key %q not found", key))
		}
		return 0, fmt.Errorf("read record: %w", err)
	}
	if err := s.store.Delete(ctx, pkFor(namespace), skKey(key)); err != nil {
		return 0, fmt.Errorf("delete record: %w", err)
	}
	return item.AttrInt64("sizeBytes"), nil
}

// ListRecords returns key summaries under the namespace, optionally
// restricted to keys starting with prefix, in key order.
func (s *Service) ListRecords(ctx context.Context, tenantID, namespace, prefix string) ([]*RecordSummary, error) {
	if _, err := s.Authorize(ctx, tenantID, namespace); err != nil {
		return nil, err
	}

	items, err := s.store.Query(ctx, pkFor(namespace), skKey(prefix))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]*RecordSummary, 0, len(items))
	for i := range items {
		item := &items[i]
		summary := &RecordSummary{
			Key:       item.Attr("key"),
			SizeBytes: item.AttrInt64("sizeBytes"),
		}
		if ts, err := time.Parse(time.RFC3339, item.Attr("updatedAt")); err == nil {
			summary.UpdatedAt = ts
		}
		out = append(out, summary)
	}
	return out, nil
}

func recordFromItem(namespace string, item *store.Item) *Record {
	rec := &Record{
		Namespace: namespace,
		Key:       item.Attr("key"),
		Value:     json.RawMessage(item.Attr("value")),
		SizeBytes: item.AttrInt64("sizeBytes"),
	}
	if ts, err := time.Parse(time.RFC3339, item.Attr("createdAt")); err == nil {
		rec.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, item.Attr("updatedAt")); err == nil {
		rec.UpdatedAt = ts
	}
	return rec
}
