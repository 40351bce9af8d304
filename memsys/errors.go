package memsys

import (
	"errors"
	"fmt"
)

// Standard status errors, mirroring the contract codes a caller of the
// memory system must branch on.
var (
	// ErrNoMem is returned when an allocation or cleanup-node allocation
	// failed for capacity reasons.
	ErrNoMem = errors.New("memsys: allocation failed")

	// ErrNotImplemented is returned by Reset on a non-tracking pool, and by
	// Register when no cleanup function is supplied.
	ErrNotImplemented = errors.New("memsys: operation not implemented by this pool")

	// ErrInvalid is returned by Unregister/UnregisterType/RunCleanup/
	// RunCleanupType when no cleanup matched, and by pool construction when
	// the allocation-policy invariant is violated.
	ErrInvalid = errors.New("memsys: invalid argument")
)

// PoolError wraps an error with the pool identity and operation that
// produced it, preserving the cause chain for errors.Is/errors.As.
type PoolError struct {
	Pool string
	Op   string
	Err  error
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("memsys: pool %q: %s: %v", e.Pool, e.Op, e.Err)
}

func (e *PoolError) Unwrap() error {
	return e.Err
}

func wrapErr(pool *Pool, op string, err error) error {
	if err == nil {
		return nil
	}
	return &PoolError{Pool: pool.name, Op: op, Err: err}
}
