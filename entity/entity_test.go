package entity

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID    string  `json:"id" table:"pk"`
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

type orderLine struct {
	OrderID string `json:"orderId" table:"pk"`
	LineID  string `json:"lineId" table:"sk"`
	SKU     string `json:"sku"`
}

type renamed struct {
	Key string `table:"pk"`
}

func (renamed) TableName() string { return "LegacyAddresses" }

type noKey struct {
	Name string
}

type twoPartitions struct {
	A string `table:"pk"`
	B string `table:"pk"`
}

func TestDescribe(t *testing.T) {
	t.Run("simple key", func(t *testing.T) {
		def, err := Describe(reflect.TypeOf(order{}))
		require.NoError(t, err)
		assert.Equal(t, "order", def.TableName)
		assert.Equal(t, "id", def.PartitionKey.Name)
		assert.False(t, def.HasSortKey())
	})

	t.Run("composite key", func(t *testing.T) {
		def, err := Describe(reflect.TypeOf(&orderLine{}))
		require.NoError(t, err)
		assert.Equal(t, "orderId", def.PartitionKey.Name)
		require.True(t, def.HasSortKey())
		assert.Equal(t, "lineId", def.SortKey.Name)
	})

	t.Run("name override", func(t *testing.T) {
		def, err := Describe(reflect.TypeOf(renamed{}))
		require.NoError(t, err)
		assert.Equal(t, "LegacyAddresses", def.TableName)
		// attribute name falls back to lowerCamel of the field name
		assert.Equal(t, "key", def.PartitionKey.Name)
	})

	t.Run("missing partition key", func(t *testing.T) {
		_, err := Describe(reflect.TypeOf(noKey{}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no partition key")
	})

	t.Run("duplicate partition key", func(t *testing.T) {
		_, err := Describe(reflect.TypeOf(twoPartitions{}))
		require.Error(t, err)
	})

	t.Run("non-struct", func(t *testing.T) {
		_, err := Describe(reflect.TypeOf("nope"))
		require.Error(t, err)
	})
}

func TestKeyValues(t *testing.T) {
	t.Run("partition only", func(t *testing.T) {
		def, err := Describe(reflect.TypeOf(order{}))
		require.NoError(t, err)

		pk, sk, err := def.KeyValues(order{ID: "o-1", Name: "Alice"})
		require.NoError(t, err)
		assert.Equal(t, "o-1", pk)
		assert.Empty(t, sk)
	})

	t.Run("composite", func(t *testing.T) {
		def, err := Describe(reflect.TypeOf(orderLine{}))
		require.NoError(t, err)

		pk, sk, err := def.KeyValues(&orderLine{OrderID: "o-1", LineID: "l-2"})
		require.NoError(t, err)
		assert.Equal(t, "o-1", pk)
		assert.Equal(t, "l-2", sk)
	})

	t.Run("empty partition key", func(t *testing.T) {
		def, err := Describe(reflect.TypeOf(order{}))
		require.NoError(t, err)

		_, _, err = def.KeyValues(order{Name: "Alice"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "partition key")
	})

	t.Run("empty sort key", func(t *testing.T) {
		def, err := Describe(reflect.TypeOf(orderLine{}))
		require.NoError(t, err)

		_, _, err = def.KeyValues(orderLine{OrderID: "o-1"})
		require.Error(t, err)
	})

	t.Run("wrong type", func(t *testing.T) {
		def, err := Describe(reflect.TypeOf(order{}))
		require.NoError(t, err)

		_, _, err = def.KeyValues(orderLine{OrderID: "o-1", LineID: "l-1"})
		require.Error(t, err)
	})
}
