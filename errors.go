package mtw

import (
	"errors"
	"fmt"
)

// RuntimeError marks fatal, infrastructure-level failures: a missing
// execution context image, an unreadable registry dump, and the like.
// These abort the whole run with a non-zero exit code. Per-package
// failures are never RuntimeErrors; they are recorded outcomes.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}
