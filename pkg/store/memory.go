package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and local development.
// A single mutex guards the table; items are deep-copied on the way in and
// out so callers cannot alias internal state.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Item // key: PK + "\x00" + SK
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Item)}
}

func memKey(pk, sk string) string {
	return pk + "\x00" + sk
}

func copyItem(item Item) Item {
	out := item
	out.Attributes = make(map[string]any, len(item.Attributes))
	for k, v := range item.Attributes {
		if s, ok := v.([]string); ok {
			v = append([]string(nil), s...)
		}
		out.Attributes[k] = v
	}
	return out
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[memKey(item.PK, item.SK)] = copyItem(item)
	return nil
}

// PutConditional implements Store.
func (s *MemoryStore) PutConditional(ctx context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(item.PK, item.SK)
	if _, exists := s.items[key]; exists {
		return ErrConditionFailed
	}
	s.items[key] = copyItem(item)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, pk, sk string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[memKey(pk, sk)]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyItem(item)
	return &out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, pk, sk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, memKey(pk, sk))
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, item := range s.items {
		if item.PK == pk && strings.HasPrefix(item.SK, skPrefix) {
			out = append(out, copyItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SK < out[j].SK })
	return out, nil
}

// QueryIndex implements Store.
func (s *MemoryStore) QueryIndex(ctx context.Context, gsi1pk, gsi1skPrefix string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, item := range s.items {
		if item.GSI1PK == gsi1pk && strings.HasPrefix(item.GSI1SK, gsi1skPrefix) {
			out = append(out, copyItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GSI1SK < out[j].GSI1SK })
	return out, nil
}

// IncrementCounter implements Store.
func (s *MemoryStore) IncrementCounter(ctx context.Context, pk, sk, attribute string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(pk, sk)
	item, ok := s.items[key]
	if !ok {
		item = Item{PK: pk, SK: sk, EntityType: EntityUsage, Attributes: map[string]any{}}
	}
	value := int64(0)
	switch v := item.Attributes[attribute].(type) {
	case int64:
		value = v
	case float64:
		value = int64(v)
	}
	value += delta
	item.Attributes[attribute] = value
	s.items[key] = item
	return value, nil
}

// SetAttributes implements Store.
func (s *MemoryStore) SetAttributes(ctx context.Context, pk, sk string, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(pk, sk)
	item, ok := s.items[key]
	if !ok {
		return ErrNotFound
	}
	for k, v := range attrs {
		item.Attributes[k] = v
	}
	s.items[key] = item
	return nil
}

// ScanEntity implements Store.
func (s *MemoryStore) ScanEntity(ctx context.Context, entityType string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Item
	for _, item := range s.items {
		if item.EntityType == entityType {
			out = append(out, copyItem(item))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PK != out[j].PK {
			return out[i].PK < out[j].PK
		}
		return out[i].SK < out[j].SK
	})
	return out, nil
}

// HealthCheck implements Store.
func (s *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}

// Len returns the number of stored items.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
