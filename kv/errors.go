package kv

import (
	"errors"
	"fmt"
)

// Common storage errors.
var (
	// ErrNotFound marks "not found" domain failures. Handlers wrap it
	// when an identifier does not resolve; dispatchers map it to 404.
	ErrNotFound = errors.New("not found")

	// ErrUnknownTable is returned when an operation names a table the
	// backend was not configured with.
	ErrUnknownTable = errors.New("unknown table")
)

// StoreError carries the failing operation and key alongside the cause.
type StoreError struct {
	Op    string
	Table string
	Key   Key
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("kv %s on %s (partition %q): %v", e.Op, e.Table, e.Key.Partition, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NotFoundf builds a "not found" domain error that dispatchers map to a
// 404 response.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
