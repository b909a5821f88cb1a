package kv

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	t.Run("put then get returns equal item", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		item := Item{"id": "o-1", "name": "Alice", "total": 42.5}
		require.NoError(t, store.Put(ctx, "Order", PartitionKey("o-1"), item))

		got, ok, err := store.Get(ctx, "Order", PartitionKey("o-1"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, item, got)
	})

	t.Run("get on absent key reports ok=false without error", func(t *testing.T) {
		store := NewMemoryStore()

		got, ok, err := store.Get(context.Background(), "Order", PartitionKey("missing"))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("stored items are isolated from caller mutation", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		item := Item{"id": "o-1", "name": "Alice"}
		require.NoError(t, store.Put(ctx, "Order", PartitionKey("o-1"), item))
		item["name"] = "Mallory"

		got, ok, err := store.Get(ctx, "Order", PartitionKey("o-1"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Alice", got["name"])
	})

	t.Run("composite keys address distinct items", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, "OrderLine", CompositeKey("o-1", "l-1"), Item{"sku": "bread"}))
		require.NoError(t, store.Put(ctx, "OrderLine", CompositeKey("o-1", "l-2"), Item{"sku": "butter"}))

		got, ok, err := store.Get(ctx, "OrderLine", CompositeKey("o-1", "l-2"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "butter", got["sku"])
	})
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Run("partition delete removes the partition only", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		// "user1" and "user10" share a key prefix but are separate partitions
		require.NoError(t, store.Put(ctx, "Session", CompositeKey("user1", "a"), Item{"n": 1}))
		require.NoError(t, store.Put(ctx, "Session", CompositeKey("user1", "b"), Item{"n": 2}))
		require.NoError(t, store.Put(ctx, "Session", CompositeKey("user10", "a"), Item{"n": 3}))

		require.NoError(t, store.Delete(ctx, "Session", PartitionKey("user1")))

		_, ok, err := store.Get(ctx, "Session", CompositeKey("user1", "a"))
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = store.Get(ctx, "Session", CompositeKey("user1", "b"))
		require.NoError(t, err)
		assert.False(t, ok)

		got, ok, err := store.Get(ctx, "Session", CompositeKey("user10", "a"))
		require.NoError(t, err)
		require.True(t, ok, "deleting user1 must not touch user10")
		assert.EqualValues(t, 3, got["n"])
	})

	t.Run("single item delete keeps partition siblings", func(t *testing.T) {
		store := NewMemoryStore()
		ctx := context.Background()

		require.NoError(t, store.Put(ctx, "Session", CompositeKey("u", "a"), Item{"n": 1}))
		require.NoError(t, store.Put(ctx, "Session", CompositeKey("u", "b"), Item{"n": 2}))

		require.NoError(t, store.Delete(ctx, "Session", CompositeKey("u", "a")))

		_, ok, err := store.Get(ctx, "Session", CompositeKey("u", "a"))
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = store.Get(ctx, "Session", CompositeKey("u", "b"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete of absent key is a no-op", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Delete(context.Background(), "Session", PartitionKey("ghost")))
	})
}

func TestMemoryStore_QueryScan(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "OrderLine", CompositeKey("o-1", "l-1"), Item{"sku": "bread"}))
	require.NoError(t, store.Put(ctx, "OrderLine", CompositeKey("o-1", "l-2"), Item{"sku": "butter"}))
	require.NoError(t, store.Put(ctx, "OrderLine", CompositeKey("o-2", "l-1"), Item{"sku": "jam"}))

	t.Run("query returns the partition", func(t *testing.T) {
		items, err := store.Query(ctx, "OrderLine", "o-1")
		require.NoError(t, err)
		assert.Len(t, items, 2)
	})

	t.Run("query of absent partition is empty", func(t *testing.T) {
		items, err := store.Query(ctx, "OrderLine", "o-404")
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("scan returns the table", func(t *testing.T) {
		items, err := store.Scan(ctx, "OrderLine")
		require.NoError(t, err)
		assert.Len(t, items, 3)
	})

	t.Run("query snapshot survives later mutation", func(t *testing.T) {
		items, err := store.Query(ctx, "OrderLine", "o-2")
		require.NoError(t, err)
		require.Len(t, items, 1)

		require.NoError(t, store.Delete(ctx, "OrderLine", PartitionKey("o-2")))
		assert.Equal(t, "jam", items[0]["sku"])
	})
}

func TestMemoryStore_Concurrency(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := CompositeKey("p", string(rune('a'+n)))
			for j := 0; j < 100; j++ {
				_ = store.Put(ctx, "T", key, Item{"j": j})
				_, _, _ = store.Get(ctx, "T", key)
				_, _ = store.Query(ctx, "T", "p")
			}
		}(i)
	}
	wg.Wait()

	items, err := store.Query(ctx, "T", "p")
	require.NoError(t, err)
	assert.Len(t, items, 8)
}

func TestMemoryStore_ContextCancellation(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Put(ctx, "T", PartitionKey("p"), Item{})
	assert.ErrorIs(t, err, context.Canceled)
	_, _, err = store.Get(ctx, "T", PartitionKey("p"))
	assert.ErrorIs(t, err, context.Canceled)
}
