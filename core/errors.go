package core

import (
	"context"
	"errors"
)

// Caller-visible error kinds. Operations wrap them, so use errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrInvalidState     = errors.New("invalid state")
	ErrForbidden        = errors.New("forbidden")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConflict         = errors.New("version conflict") // expected version did not match
)

// storeError keeps the underlying store error in the chain next to ErrStoreUnavailable.
type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return e.op + ": " + ErrStoreUnavailable.Error() + ": " + e.err.Error()
}

func (e *storeError) Unwrap() error {
	return e.err
}

func (e *storeError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &storeError{op: op, err: err}
}

// Retryable returns true if the caller may retry the operation unmodified.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// Kind returns the name of the error kind, as shown to API clients.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return "store_unavailable"
	default:
		return "internal"
	}
}
