package pollset

import "github.com/joeycumines/go-apr/memsys"

// Flags configures a PollSet at creation time, mirroring
// APR_POLLSET_THREADSAFE/APR_POLLSET_WAKEABLE.
type Flags uint32

const (
	// FlagThreadSafe enables the ring lock; without it, Add/Remove/Poll
	// assume single-goroutine use and skip locking entirely, mirroring
	// apr_pollset_create's "only lock if APR_POLLSET_THREADSAFE" check.
	FlagThreadSafe Flags = 1 << iota
	// FlagWakeable reserves one extra slot for a self-pipe descriptor and
	// enables Wakeup.
	FlagWakeable
)

// Option configures a PollSet at creation time, grounded on the teacher's
// LoopOption functional-options pattern (eventloop/options.go).
type Option func(*pollsetConfig)

type pollsetConfig struct {
	flags Flags
	pool  *memsys.Pool
}

// WithFlags sets the PollSet's Flags.
func WithFlags(f Flags) Option {
	return func(c *pollsetConfig) { c.flags = f }
}

// WithPool registers the PollSet's Destroy as a cleanup on pool, so
// destroying pool also tears down the backend, the Go analogue of
// apr_pollset_create's apr_pool_cleanup_register(p, pollset,
// backend_cleanup, ...).
func WithPool(pool *memsys.Pool) Option {
	return func(c *pollsetConfig) { c.pool = pool }
}
