package meshjoin

import (
	"errors"
	"fmt"
)

var (
	// ErrNilChannel is returned when a Joiner is created without a
	// communication channel.
	ErrNilChannel = errors.New("communication channel must not be nil")

	// ErrConvergenceFailed is returned when an iterative resolution does
	// not reach a fixed point within the configured iteration limit.
	ErrConvergenceFailed = errors.New("maximum number of iterations reached without convergence")
)

// ErrPairOutOfRange indicates an equivalence pair referencing a local
// element index outside the caller's element list.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrPairOutOfRange struct {
	Pair  int
	Index uint64
	N     int
	cause error
}

func (e *ErrPairOutOfRange) Error() string {
	return fmt.Sprintf("equivalence pair %d references element %d, have %d elements", e.Pair, e.Index, e.N)
}

func (e *ErrPairOutOfRange) Unwrap() error { return e.cause }
