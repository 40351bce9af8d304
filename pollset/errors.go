package pollset

import (
	"errors"
	"fmt"
)

// Standard status errors, mirroring the contract codes a caller of the
// poll set must branch on.
var (
	// ErrNoMem is returned when a backend association or element
	// allocation fails for capacity reasons.
	ErrNoMem = errors.New("pollset: allocation failed")

	// ErrNotFound is returned by Remove when the descriptor was never
	// added (or was already removed).
	ErrNotFound = errors.New("pollset: descriptor not found")

	// ErrTimeUp is returned by Poll when the timeout elapses with no
	// ready descriptors.
	ErrTimeUp = errors.New("pollset: timeout")

	// ErrInterrupted is returned by Poll when a wakeup pipe byte was
	// drained instead of a real readiness event.
	ErrInterrupted = errors.New("pollset: interrupted by wakeup")

	// ErrNotWakeable is returned by Wakeup when the PollSet was created
	// without FlagWakeable.
	ErrNotWakeable = errors.New("pollset: not wakeable")
)

// Error wraps an error with the operation that produced it, preserving the
// cause chain for errors.Is/errors.As, grounded on the teacher's
// TypeError/RangeError/TimeoutError cause-chain pattern
// (eventloop/errors.go).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pollset: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
