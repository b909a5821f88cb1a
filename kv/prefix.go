package kv

import "context"

// Prefixed wraps a store so every table name is namespaced with the
// given prefix. Functions keep addressing logical table names; the
// wrapper maps them to the physical names a deployment owns. An empty
// prefix returns the store unchanged.
func Prefixed(s Store, prefix string) Store {
	if prefix == "" {
		return s
	}
	return &prefixStore{next: s, prefix: prefix}
}

type prefixStore struct {
	next   Store
	prefix string
}

func (p *prefixStore) Put(ctx context.Context, table string, key Key, item Item) error {
	return p.next.Put(ctx, p.prefix+table, key, item)
}

func (p *prefixStore) Get(ctx context.Context, table string, key Key) (Item, bool, error) {
	return p.next.Get(ctx, p.prefix+table, key)
}

func (p *prefixStore) Delete(ctx context.Context, table string, key Key) error {
	return p.next.Delete(ctx, p.prefix+table, key)
}

func (p *prefixStore) Query(ctx context.Context, table string, partition string) ([]Item, error) {
	return p.next.Query(ctx, p.prefix+table, partition)
}

func (p *prefixStore) Scan(ctx context.Context, table string) ([]Item, error) {
	return p.next.Scan(ctx, p.prefix+table)
}
