package kv

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore is the in-process Store used by the local development
// server and by tests. Items live in nested maps, table -> partition
// key -> sort key, guarded by a read-write mutex. The nesting keeps
// partitions structurally separate: deleting partition "user1" cannot
// touch "user10" because keys are never concatenated.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]map[string]Item
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]map[string]map[string]Item)}
}

// sort keys are optional; partition-only items live under one fixed slot.
const noSort = ""

func sortSlot(key Key) string {
	if key.HasSort {
		return key.Sort
	}
	return noSort
}

func (s *MemoryStore) Put(ctx context.Context, table string, key Key, item Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	partitions, ok := s.tables[table]
	if !ok {
		partitions = make(map[string]map[string]Item)
		s.tables[table] = partitions
	}
	items, ok := partitions[key.Partition]
	if !ok {
		items = make(map[string]Item)
		partitions[key.Partition] = items
	}
	items[sortSlot(key)] = maps.Clone(item)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, table string, key Key) (Item, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.tables[table][key.Partition][sortSlot(key)]
	if !ok {
		return nil, false, nil
	}
	return maps.Clone(item), true, nil
}

// Delete removes one item, or the whole partition when the key carries
// no sort component.
func (s *MemoryStore) Delete(ctx context.Context, table string, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	partitions, ok := s.tables[table]
	if !ok {
		return nil
	}
	if !key.HasSort {
		delete(partitions, key.Partition)
		return nil
	}
	items, ok := partitions[key.Partition]
	if !ok {
		return nil
	}
	delete(items, key.Sort)
	if len(items) == 0 {
		delete(partitions, key.Partition)
	}
	return nil
}

// Query returns a snapshot of every item in a partition.
func (s *MemoryStore) Query(ctx context.Context, table string, partition string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.tables[table][partition]
	out := make([]Item, 0, len(items))
	for _, item := range items {
		out = append(out, maps.Clone(item))
	}
	return out, nil
}

// Scan returns a snapshot of every item in a table.
func (s *MemoryStore) Scan(ctx context.Context, table string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Item
	for _, items := range s.tables[table] {
		for _, item := range items {
			out = append(out, maps.Clone(item))
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
