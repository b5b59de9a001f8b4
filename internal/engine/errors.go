package engine

import (
	"errors"
	"fmt"
)

// AbortError reports a pass stopped early by a hard failure. The runs
// before Ordinal were made; the transaction was still taken to a terminal
// state.
type AbortError struct {
	Component string
	Ordinal   int
	Err       error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("component %s aborted at run %d: %v", e.Component, e.Ordinal, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// IsAborted reports whether err is an AbortError.
// Uses errors.As to handle wrapped errors.
func IsAborted(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}

// UnknownOperationError is returned for components naming an operation
// that is not registered.
type UnknownOperationError struct {
	Operation string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Operation)
}
