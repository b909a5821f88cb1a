package dispatch

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
)

var marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()

// Marshal serializes a response with the fixed naming convention:
// struct fields without a json tag appear as lowerCamel. Fields with a
// json tag keep the tag's name; `json:"-"` fields are dropped.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(convert(reflect.ValueOf(v)))
}

func convert(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	// types with their own JSON representation (time.Time etc.) keep it
	if v.Type().Implements(marshalerType) || reflect.PointerTo(v.Type()).Implements(marshalerType) {
		return v.Interface()
	}

	switch v.Kind() {
	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name, omitEmpty, skip := fieldName(f)
			if skip {
				continue
			}
			fv := v.Field(i)
			if omitEmpty && fv.IsZero() {
				continue
			}
			out[name] = convert(fv)
		}
		return out
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return []any{}
		}
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = convert(v.Index(i))
		}
		return out
	case reflect.Map:
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[strcase.ToLowerCamel(iter.Key().String())] = convert(iter.Value())
		}
		return out
	default:
		return v.Interface()
	}
}

func fieldName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return strcase.ToLowerCamel(f.Name), false, false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "-" && len(parts) == 1 {
		return "", false, true
	}
	if name == "" || name == "-" {
		name = strcase.ToLowerCamel(f.Name)
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}
