package webcrypto

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the registry and dispatcher. Callers match with
// errors.Is; the API layer maps them to HTTP status codes.
var (
	// ErrInvalidBinding is returned when a proposed binding violates an
	// attribute rule (creation) or is not a superset grow (update).
	ErrInvalidBinding = errors.New("invalid binding")

	// ErrConflict is returned when an identifier already resolves to an
	// active record.
	ErrConflict = errors.New("identifier conflict")

	// ErrNotFound is returned when an identifier does not resolve to an
	// active record.
	ErrNotFound = errors.New("key not found")

	// ErrUnauthorized is returned when the calling origin is not in the
	// record's origin bindings.
	ErrUnauthorized = errors.New("origin not authorized")

	// ErrPermissionDenied is returned when a mutation is attempted on a
	// record whose updatable flag is false.
	ErrPermissionDenied = errors.New("record is not updatable")
)

// BackendErrorKind distinguishes backend failure modes.
type BackendErrorKind string

const (
	BackendFailed    BackendErrorKind = "failed"
	BackendCancelled BackendErrorKind = "cancelled"
	BackendTimeout   BackendErrorKind = "timeout"
)

// BackendError wraps a failure from the hardware backend adapter.
// The dispatcher never retries; the caller decides.
type BackendError struct {
	Op   string // "generate", "sign", "verify", "purge", "public"
	Kind BackendErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// newBackendError classifies a backend failure, deriving the kind from
// context errors when the call was cancelled or timed out.
func newBackendError(op string, err error) *BackendError {
	kind := BackendFailed
	switch {
	case errors.Is(err, context.Canceled):
		kind = BackendCancelled
	case errors.Is(err, context.DeadlineExceeded):
		kind = BackendTimeout
	}
	return &BackendError{Op: op, Kind: kind, Err: err}
}
