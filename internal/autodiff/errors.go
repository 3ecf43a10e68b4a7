package autodiff

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrArityMismatch      = errors.New("arity mismatch")
	ErrShape              = errors.New("shape error")
	ErrCyclicGraph        = errors.New("cyclic graph detected")
	ErrBackwardExecution  = errors.New("backward execution failed")
	ErrAlreadyConnected   = errors.New("function already connected")
	ErrForeignVariable    = errors.New("variable belongs to another graph")
	ErrNilVariable        = errors.New("nil variable")
	ErrNilFunction        = errors.New("nil function")
	ErrBackwardInProgress = errors.New("backward pass already in progress on this graph")
	ErrGradShape          = errors.New("gradient does not match variable")
)

// BackwardError reports a failure raised by an Operation's backward step.
// It matches ErrBackwardExecution and the underlying cause with errors.Is.
type BackwardError struct {
	Function *Function // Function whose backward step failed
	Err      error     // Error returned by the Operation
}

// Error implements the error interface.
func (e *BackwardError) Error() string {
	return fmt.Sprintf("%s: %s (rank %d): %v", ErrBackwardExecution, e.Function, e.Function.Rank(), e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *BackwardError) Unwrap() []error {
	return []error{ErrBackwardExecution, e.Err}
}
