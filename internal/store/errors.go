package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the profile or sub-resource does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrMalformedResponse means the store answered with an unexpected shape.
	ErrMalformedResponse = errors.New("store: malformed response")
)

// TransportError reports an unreachable store or a non-2xx answer.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("store %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
