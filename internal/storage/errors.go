// Package storage holds what the entity index and the blob store share:
// the error taxonomy and the positioned file I/O helpers.
package storage

import (
	"errors"
	"fmt"
)

// ErrInvalidFormat is returned when a file does not hold a structure this
// package can open (bad magic, truncated prologue, impossible counters).
var ErrInvalidFormat = errors.New("invalid storage format")

// IOError wraps a failed read or write with the file and operation involved.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// WrapIO returns nil if err is nil, otherwise an *IOError.
func WrapIO(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// InvalidFormat returns an error wrapping ErrInvalidFormat with detail.
func InvalidFormat(path, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", path, ErrInvalidFormat, fmt.Sprintf(format, args...))
}
