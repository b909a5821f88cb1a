// Package kv is the key-value table contract shared by every execution
// context. Items are flat attribute maps addressed by a partition key
// and an optional sort key.
package kv

import (
	"context"
)

// Item is a stored record: attribute name to scalar value.
type Item = map[string]any

// Key addresses an item. HasSort distinguishes "no sort key" from an
// empty sort value.
type Key struct {
	Partition string
	Sort      string
	HasSort   bool
}

// PartitionKey builds a partition-only key.
func PartitionKey(pk string) Key { return Key{Partition: pk} }

// CompositeKey builds a (partition, sort) key.
func CompositeKey(pk, sk string) Key { return Key{Partition: pk, Sort: sk, HasSort: true} }

// TableSpec tells a backend which attributes hold the keys of a table.
type TableSpec struct {
	PartitionAttr string
	SortAttr      string // empty for partition-only tables
}

// Store is the storage handle handed to functions. Put, Get and Delete
// are atomic single-key operations; Query and Scan return point-in-time
// snapshots with no isolation guarantee beyond map consistency. A
// Delete with a partition-only key removes every item in the partition.
// Get on an absent key reports ok=false, never an error.
type Store interface {
	Put(ctx context.Context, table string, key Key, item Item) error
	Get(ctx context.Context, table string, key Key) (Item, bool, error)
	Delete(ctx context.Context, table string, key Key) error
	Query(ctx context.Context, table string, partition string) ([]Item, error)
	Scan(ctx context.Context, table string) ([]Item, error)
}
