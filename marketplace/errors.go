package marketplace

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRejected is returned when the marketplace denied the request
	// because of a missing, expired or revoked credential.
	ErrAuthRejected = errors.New("marketplace rejected credential")

	// ErrNotFound is returned when the requested data does not exist or
	// was empty.
	ErrNotFound = errors.New("not found")
)

// TransientError wraps a failure that is expected to go away by itself, e.g.
// a network error or a server side error.
type TransientError struct {
	// Op is the marketplace operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns the operation and the underlying error.
func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient returns true if the error, or any error it wraps, is a
// TransientError.
func IsTransient(err error) bool {
	var transientErr *TransientError
	return errors.As(err, &transientErr)
}
