package memsys

// Locker is the minimal mutual-exclusion interface a Pool can be handed,
// matching sync.Mutex/sync.RWMutex's Lock/Unlock pair so either can be
// supplied directly, or a no-op implementation for single-threaded pools.
type Locker interface {
	Lock()
	Unlock()
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// PoolOption configures a Pool at construction time, grounded on the
// teacher's LoopOption functional-options pattern (eventloop/options.go).
type PoolOption func(*poolConfig)

type poolConfig struct {
	name             string
	policy           Policy
	lock             Locker
	userLock         Locker
	preDestroy       func(*Pool)
	becomeAccounting bool
}

// WithName sets the pool's diagnostic name, surfaced in PoolError and log
// output.
func WithName(name string) PoolOption {
	return func(c *poolConfig) { c.name = name }
}

// WithPolicy overrides the allocation policy; if omitted, NewChild inherits
// no policy from its parent (per spec.md §4.2) and must be given one
// explicitly, while NewRoot defaults to Heap().
func WithPolicy(p Policy) PoolOption {
	return func(c *poolConfig) { c.policy = p }
}

// WithLock supplies an explicit Locker, e.g. a shared sync.Mutex across a
// subtree of pools that must serialize against each other. If omitted, each
// Pool gets its own private sync.Mutex.
func WithLock(l Locker) PoolOption {
	return func(c *poolConfig) { c.lock = l }
}

// WithoutStructuralLock disables locking entirely for a pool known to be
// used from a single goroutine, mirroring spec.md's ThreadSafe-flag-off
// fast path for the Poll Set.
func WithoutStructuralLock() PoolOption {
	return func(c *poolConfig) { c.lock = noopLocker{} }
}

// WithPreDestroy registers a hook that Destroy invokes after the pool's
// children and cleanups have been handled and the pool has been unlinked
// from its parent, just before a tracking policy's Destroy reclaims it. A
// tracking ancestor's Reset or Destroy also invokes it, right after this
// pool's own cleanups run.
func WithPreDestroy(fn func(*Pool)) PoolOption {
	return func(c *poolConfig) { c.preDestroy = fn }
}

// WithUserLock installs the Locker that Pool.Lock/Pool.Unlock delegate to.
// If omitted, Lock/Unlock are a no-op success, mirroring apr_sms_t's
// lock(self)/unlock(self) pair, which call user-installed functions when
// present and no-op otherwise. This is a separate primitive from the
// pool's internal structural lock (see WithLock): it exists for callers
// that want to coarsen locking around a custom sequence of Pool calls,
// and must never be the same lock as the structural one, or a caller
// holding it who then calls a mutating Pool method (Register, NewChild,
// Destroy, ...) on the same goroutine would self-deadlock.
func WithUserLock(l Locker) PoolOption {
	return func(c *poolConfig) { c.userLock = l }
}

// WithAccounting marks the child being constructed as its parent's
// accounting pool: the pool from which the parent's own cleanup-node
// bookkeeping is allocated from then on (spec.md §3's accounting pointer,
// Invariant 4's "self unless promoted"). The accounting pointer is a weak
// reference — it must name self or a direct child — so this option only
// makes sense on NewChild; passing it to NewRoot has no effect, since a
// root has no parent to promote itself into.
func WithAccounting() PoolOption {
	return func(c *poolConfig) { c.becomeAccounting = true }
}
