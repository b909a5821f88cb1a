// Package entity describes storage entities: plain structs whose key
// fields carry `table` tags. Exactly one field is the partition key and
// at most one is the sort key. Uniqueness is enforced by the
// (partition key, sort key) pair.
package entity

import (
	"fmt"
	"reflect"

	"github.com/iancoleman/strcase"
	"github.com/spf13/cast"
)

// Tag values recognized on entity struct fields.
const (
	tagName      = "table"
	tagPartition = "pk"
	tagSort      = "sk"
)

// Namer is implemented by entities that override their physical table name.
// Without it the table name is the exact struct type name; there is no
// pluralization or other renaming heuristic.
type Namer interface {
	TableName() string
}

// Field identifies a key field on an entity struct.
type Field struct {
	// Name is the physical attribute name: the json tag when present,
	// otherwise the lowerCamel form of the Go field name.
	Name string
	// Index is the field's index within the struct.
	Index int
}

// Definition is the discovered shape of a storage entity.
type Definition struct {
	Type         reflect.Type
	TableName    string
	PartitionKey Field
	SortKey      *Field
}

// HasSortKey reports whether the entity declares a composite key.
func (d Definition) HasSortKey() bool { return d.SortKey != nil }

// Describe inspects an entity struct type and builds its Definition.
// The type must be a struct (or pointer to struct) with exactly one
// `table:"pk"` field and at most one `table:"sk"` field.
func Describe(t reflect.Type) (Definition, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return Definition{}, fmt.Errorf("entity %s is not a struct", t)
	}

	def := Definition{Type: t, TableName: t.Name()}
	if n, ok := reflect.New(t).Interface().(Namer); ok {
		def.TableName = n.TableName()
	}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		switch f.Tag.Get(tagName) {
		case tagPartition:
			if def.PartitionKey.Name != "" {
				return Definition{}, fmt.Errorf("entity %s declares more than one partition key", t)
			}
			def.PartitionKey = Field{Name: AttributeName(f), Index: i}
		case tagSort:
			if def.SortKey != nil {
				return Definition{}, fmt.Errorf("entity %s declares more than one sort key", t)
			}
			def.SortKey = &Field{Name: AttributeName(f), Index: i}
		}
	}
	if def.PartitionKey.Name == "" {
		return Definition{}, fmt.Errorf("entity %s has no partition key: tag exactly one field with `table:\"pk\"`", t)
	}
	return def, nil
}

// KeyValues extracts the key field values from an entity instance as
// strings. A missing or empty partition key is an error; an empty sort
// key on a composite entity is an error as well.
func (d Definition) KeyValues(item any) (partition, sort string, err error) {
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Type() != d.Type {
		return "", "", fmt.Errorf("item type %s does not match entity %s", v.Type(), d.Type)
	}

	partition, err = cast.ToStringE(v.Field(d.PartitionKey.Index).Interface())
	if err != nil {
		return "", "", fmt.Errorf("partition key %q: %w", d.PartitionKey.Name, err)
	}
	if partition == "" {
		return "", "", fmt.Errorf("partition key %q is empty on %s", d.PartitionKey.Name, d.Type)
	}
	if d.SortKey == nil {
		return partition, "", nil
	}
	sort, err = cast.ToStringE(v.Field(d.SortKey.Index).Interface())
	if err != nil {
		return "", "", fmt.Errorf("sort key %q: %w", d.SortKey.Name, err)
	}
	if sort == "" {
		return "", "", fmt.Errorf("sort key %q is empty on %s", d.SortKey.Name, d.Type)
	}
	return partition, sort, nil
}

// AttributeName resolves the physical attribute name for a struct field:
// the json tag when present, else the lowerCamel field name.
func AttributeName(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("json"); ok {
		name := tag
		for i, r := range tag {
			if r == ',' {
				name = tag[:i]
				break
			}
		}
		if name != "" && name != "-" {
			return name
		}
	}
	return strcase.ToLowerCamel(f.Name)
}
