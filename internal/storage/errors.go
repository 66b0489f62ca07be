package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that an object, or the backend root itself, does not
// exist.
var ErrNotFound = errors.New("storage: not found")

// ErrConfig reports backend configuration rejected at construction time,
// before any I/O.
var ErrConfig = errors.New("storage: invalid configuration")

// BackendError wraps an I/O or remote-service failure so callers can retry
// the operation or surface the underlying detail.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func backendErr(op string, err error) error {
	return &BackendError{Op: op, Err: err}
}
