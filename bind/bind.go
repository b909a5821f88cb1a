// Package bind translates untyped request data, route captures, query
// parameters and JSON bodies, into typed request shapes. Matching is
// case-insensitive and coercion failures are binding errors that
// dispatchers map to 400 responses.
package bind

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cast"

	"github.com/gantryhq/gantry/entity"
)

// Error is a binding failure: malformed input or a type coercion the
// target shape rejects.
type Error struct {
	Field string
	Value string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("bind: %v", e.Err)
	}
	return fmt.Sprintf("bind: field %q from %q: %v", e.Field, e.Value, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Merged combines route captures and query parameters into one
// case-insensitive map. Route values win on key collision.
func Merged(route, query map[string]string) map[string]string {
	merged := make(map[string]string, len(route)+len(query))
	for k, v := range query {
		merged[strings.ToLower(k)] = v
	}
	for k, v := range route {
		merged[strings.ToLower(k)] = v
	}
	return merged
}

// Values assigns map entries onto the matching exported fields of
// target (a struct pointer). Keys match the json tag name first, then
// the Go field name, case-insensitively. Unmatched fields keep their
// zero value; unmatched keys are ignored.
func Values(target any, vals map[string]string) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return &Error{Err: fmt.Errorf("target %T is not a struct pointer", target)}
	}
	v = v.Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		raw, ok := lookup(vals, entity.AttributeName(f), f.Name)
		if !ok {
			continue
		}
		if err := assign(v.Field(i), raw); err != nil {
			return &Error{Field: entity.AttributeName(f), Value: raw, Err: err}
		}
	}
	return nil
}

// JSON deserializes a body into target. An empty body yields the zero
// instance; malformed JSON is a binding error carrying the parse
// failure.
func JSON(target any, body []byte) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return &Error{Err: err}
	}
	return nil
}

func lookup(vals map[string]string, names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := vals[strings.ToLower(name)]; ok {
			return v, true
		}
	}
	return "", false
}

func assign(field reflect.Value, raw string) error {
	if field.Kind() == reflect.Pointer {
		ptr := reflect.New(field.Type().Elem())
		if err := assign(ptr.Elem(), raw); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(raw)
		if err != nil {
			return err
		}
		if field.OverflowInt(n) {
			return fmt.Errorf("value %q overflows %s", raw, field.Type())
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(raw)
		if err != nil {
			return err
		}
		if field.OverflowUint(n) {
			return fmt.Errorf("value %q overflows %s", raw, field.Type())
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}
