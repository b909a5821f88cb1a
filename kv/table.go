package kv

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/gantryhq/gantry/entity"
)

// Table is a typed view over a Store for one entity type. It derives
// keys and attribute names from the entity definition so handlers never
// build item maps by hand.
type Table[T any] struct {
	store Store
	def   entity.Definition
	name  string
}

// TableOption adjusts a typed table.
type TableOption func(*tableOptions)

type tableOptions struct {
	prefix string
}

// WithTablePrefix namespaces the physical table, e.g. per environment.
func WithTablePrefix(prefix string) TableOption {
	return func(o *tableOptions) { o.prefix = prefix }
}

// NewTable builds a typed table for T. T must satisfy the entity
// contract; a malformed entity is a programmer error and panics.
func NewTable[T any](store Store, opts ...TableOption) *Table[T] {
	var zero T
	def, err := entity.Describe(reflect.TypeOf(zero))
	if err != nil {
		panic(fmt.Sprintf("kv: %v", err))
	}
	var o tableOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Table[T]{store: store, def: def, name: o.prefix + def.TableName}
}

// Name is the physical table name, prefix included.
func (t *Table[T]) Name() string { return t.name }

// Put stores one entity, deriving its key from the tagged fields.
func (t *Table[T]) Put(ctx context.Context, v T) error {
	key, err := t.keyOf(v)
	if err != nil {
		return err
	}
	return t.store.Put(ctx, t.name, key, encodeItem(reflect.ValueOf(v)))
}

// Get loads one entity by partition key, plus sort key for composite
// entities. Absence is reported as ok=false.
func (t *Table[T]) Get(ctx context.Context, partition string, sort ...string) (T, bool, error) {
	var zero T
	key, err := t.key(partition, sort)
	if err != nil {
		return zero, false, err
	}
	item, ok, err := t.store.Get(ctx, t.name, key)
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := decodeItem[T](item)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Delete removes by key. Omitting the sort key on a composite entity
// removes the whole partition.
func (t *Table[T]) Delete(ctx context.Context, partition string, sort ...string) error {
	key := PartitionKey(partition)
	if len(sort) > 0 {
		key = CompositeKey(partition, sort[0])
	}
	return t.store.Delete(ctx, t.name, key)
}

// Query returns every entity in one partition.
func (t *Table[T]) Query(ctx context.Context, partition string) ([]T, error) {
	items, err := t.store.Query(ctx, t.name, partition)
	if err != nil {
		return nil, err
	}
	return decodeItems[T](items)
}

// Scan returns every entity in the table.
func (t *Table[T]) Scan(ctx context.Context) ([]T, error) {
	items, err := t.store.Scan(ctx, t.name)
	if err != nil {
		return nil, err
	}
	return decodeItems[T](items)
}

func (t *Table[T]) keyOf(v T) (Key, error) {
	pk, sk, err := t.def.KeyValues(v)
	if err != nil {
		return Key{}, err
	}
	if t.def.HasSortKey() {
		return CompositeKey(pk, sk), nil
	}
	return PartitionKey(pk), nil
}

func (t *Table[T]) key(partition string, sort []string) (Key, error) {
	if t.def.HasSortKey() {
		if len(sort) == 0 {
			return Key{}, fmt.Errorf("entity %s has a composite key, sort key required", t.def.Type)
		}
		return CompositeKey(partition, sort[0]), nil
	}
	if len(sort) > 0 {
		return Key{}, fmt.Errorf("entity %s has no sort key", t.def.Type)
	}
	return PartitionKey(partition), nil
}

func encodeItem(v reflect.Value) Item {
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	t := v.Type()
	item := make(Item, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		item[entity.AttributeName(f)] = v.Field(i).Interface()
	}
	return item
}

func decodeItem[T any](item Item) (T, error) {
	var v T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		Result:           &v,
	})
	if err != nil {
		return v, err
	}
	if err := dec.Decode(item); err != nil {
		return v, fmt.Errorf("decode item: %w", err)
	}
	return v, nil
}

func decodeItems[T any](items []Item) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		v, err := decodeItem[T](item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
