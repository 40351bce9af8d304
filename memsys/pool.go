package memsys

import (
	"sync"

	"github.com/joeycumines/go-apr/internal/obslog"
)

// Pool is one node in a memory-allocation tree. Each Pool has its own
// Policy (allocation + optional reset/destroy), its own cleanup registry,
// and links to its parent and siblings. Grounded on
// original_source/memory/unix/apr_sms.c's apr_sms_t, with the C
// back-reference-to-pointer-slot trick replaced by an ordinary doubly
// linked sibling list (see DESIGN.md, Open Question resolutions).
type Pool struct {
	name string

	mu Locker

	parent *Pool
	prev   *Pool
	next   *Pool

	firstChild *Pool

	// accounting is the pool from which this pool's own cleanup-node
	// bookkeeping is allocated: a weak reference, either p itself or a
	// direct child (never an owning link — the child role in the tree
	// already owns its storage). Defaults to self (Invariant 4); promoted
	// to a direct child via WithAccounting at that child's construction.
	accounting *Pool

	userLock Locker

	policy     Policy
	cleanups   *cleanupNode
	preDestroy func(*Pool)

	destroyed bool
}

// NewRoot creates a pool with no parent. If no WithPolicy option is given,
// it defaults to Heap() — a root pool with no explicit tracking policy is
// a plain non-tracking allocator, same as apr_sms_init called with a NULL
// parent and a caller-supplied module vtable.
func NewRoot(opts ...PoolOption) *Pool {
	cfg := poolConfig{lock: &sync.Mutex{}}
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.policy.valid() {
		cfg.policy = Heap()
	}
	p := &Pool{
		name:       cfg.name,
		mu:         cfg.lock,
		userLock:   cfg.userLock,
		policy:     cfg.policy,
		preDestroy: cfg.preDestroy,
	}
	p.accounting = p
	if p.userLock == nil {
		p.userLock = noopLocker{}
	}
	assertPool(p)
	return p
}

// NewChild creates a pool as a child of parent. A Policy must be supplied
// via WithPolicy; unlike apr_sms_init's default calloc fallback, go-apr
// requires an explicit policy per child since Go has no implicit "copy the
// parent's vtable" convention (every policy field is a real closure, not a
// pointer that can be zero-valued and mean "inherit").
func NewChild(parent *Pool, opts ...PoolOption) (*Pool, error) {
	if parent == nil {
		return nil, ErrInvalid
	}
	cfg := poolConfig{lock: &sync.Mutex{}}
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.policy.valid() {
		return nil, ErrInvalid
	}
	c := &Pool{
		name:       cfg.name,
		mu:         cfg.lock,
		parent:     parent,
		policy:     cfg.policy,
		preDestroy: cfg.preDestroy,
	}
	c.accounting = c
	if cfg.userLock == nil {
		c.userLock = noopLocker{}
	} else {
		c.userLock = cfg.userLock
	}

	parent.mu.Lock()
	if parent.destroyed {
		parent.mu.Unlock()
		return nil, wrapErr(parent, "NewChild", ErrInvalid)
	}
	c.next = parent.firstChild
	if parent.firstChild != nil {
		parent.firstChild.prev = c
	}
	parent.firstChild = c
	if cfg.becomeAccounting {
		parent.accounting = c
	}
	parent.mu.Unlock()

	if !c.tracking() && !hasTrackingAncestor(c) {
		obslog.Warn("memsys", "non-tracking pool created with no tracking ancestor", "pool", c.name)
	}

	assertPool(c)
	return c, nil
}

func (p *Pool) tracking() bool {
	return p.policy.Reset != nil
}

func hasTrackingAncestor(p *Pool) bool {
	for n := p; n != nil; n = n.parent {
		if n.tracking() {
			return true
		}
	}
	return false
}

// Name returns the pool's diagnostic name, or "" if none was given.
func (p *Pool) Name() string { return p.name }

// Parent returns the pool's parent, or nil for a root pool.
func (p *Pool) Parent() *Pool { return p.parent }

// Tracking reports whether this pool reclaims memory in bulk (Reset/
// Destroy) rather than per-allocation Free.
func (p *Pool) Tracking() bool { return p.tracking() }

// Accounting returns the pool from which this pool's own cleanup-node
// bookkeeping is allocated: either p itself (the default) or a direct
// child promoted via WithAccounting.
func (p *Pool) Accounting() *Pool { return p.accounting }

// Lock delegates to the user-installed lock function, if one was supplied
// via WithUserLock, or is a no-op success otherwise. This is distinct from
// the pool's internal structural lock (which Register/Reset/Destroy/
// NewChild use to protect the tree and cleanup list): it exists purely for
// callers that want to coarsen locking around a custom sequence of calls,
// mirroring apr_sms_t's separate lock/unlock function pointers.
func (p *Pool) Lock() { p.userLock.Lock() }

// Unlock releases the lock acquired by Lock.
func (p *Pool) Unlock() { p.userLock.Unlock() }

// IsAncestor reports whether p is an ancestor of (or equal to) other,
// walking other's parent chain. This is the idiomatic-polarity
// counterpart of apr_sms_is_ancestor, which returns APR_SUCCESS (zero,
// i.e. falsy) on a match; here true means "yes, p is an ancestor".
func (p *Pool) IsAncestor(other *Pool) bool {
	for n := other; n != nil; n = n.parent {
		if n == p {
			return true
		}
	}
	return false
}

// Malloc allocates n bytes from the pool's policy. Malloc(0) returns
// (nil, nil), mirroring apr_sms_malloc's zero-size short circuit.
func (p *Pool) Malloc(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	b, err := p.policy.Malloc(n)
	if err != nil {
		return nil, wrapErr(p, "Malloc", err)
	}
	return b, nil
}

// Calloc allocates n zeroed bytes, using the policy's Calloc if supplied,
// else falling back to Malloc-then-zero (apr_sms_default_calloc).
func (p *Pool) Calloc(n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if p.policy.Calloc != nil {
		b, err := p.policy.Calloc(n)
		if err != nil {
			return nil, wrapErr(p, "Calloc", err)
		}
		return b, nil
	}
	b, err := p.policy.Malloc(n)
	if err != nil {
		return nil, wrapErr(p, "Calloc", err)
	}
	for i := range b {
		b[i] = 0
	}
	return b, nil
}

// Realloc resizes mem to n bytes. Realloc(nil, n) behaves as Malloc(n);
// Realloc(mem, 0) behaves as Free(mem) and returns (nil, nil). Otherwise
// it delegates to the policy's Realloc, or returns ErrNotImplemented if
// the policy doesn't support it.
func (p *Pool) Realloc(mem []byte, n int) ([]byte, error) {
	if mem == nil {
		return p.Malloc(n)
	}
	if n == 0 {
		return nil, p.Free(mem)
	}
	if p.policy.Realloc == nil {
		return nil, wrapErr(p, "Realloc", ErrNotImplemented)
	}
	b, err := p.policy.Realloc(mem, n)
	if err != nil {
		return nil, wrapErr(p, "Realloc", err)
	}
	return b, nil
}

// Free releases mem. On a tracking pool (no Free in its policy) this is a
// documented no-op success: the memory is reclaimed wholesale by Reset or
// Destroy instead (apr_sms_free's "ok to return APR_SUCCESS" comment).
func (p *Pool) Free(mem []byte) error {
	if p.policy.Free == nil {
		return nil
	}
	return wrapErr(p, "Free", p.policy.Free(mem))
}

// accountingMalloc allocates n bytes of bookkeeping storage from p's
// accounting pool rather than p itself, mirroring
// apr_sms_malloc(sms->accounting, ...). Locking p.accounting's own mutex is
// only needed when it differs from p — when accounting == p the caller
// already holds p.mu, and sync.Mutex isn't reentrant.
func (p *Pool) accountingMalloc(n int) ([]byte, error) {
	acc := p.accounting
	if acc == p {
		return p.policy.Malloc(n)
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.policy.Malloc(n)
}

// accountingFree returns a bookkeeping allocation to p's accounting pool,
// mirroring the apr_sms_free(sms->accounting, cleanup) calls scattered
// through apr_sms_cleanup_unregister et al. A no-op if the accounting
// pool's policy has no Free (it's tracking, so the memory goes away in
// bulk on Reset/Destroy instead).
func (p *Pool) accountingFree(mem []byte) {
	if mem == nil {
		return
	}
	acc := p.accounting
	if acc.policy.Free == nil {
		return
	}
	if acc == p {
		_ = acc.policy.Free(mem)
		return
	}
	acc.mu.Lock()
	_ = acc.policy.Free(mem)
	acc.mu.Unlock()
}

// Register adds a cleanup of the given type, invoked on Reset, Destroy, or
// an explicit RunCleanup(Type) call. fn must be non-nil.
func (p *Pool) Register(typ CleanupType, fn CleanupFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.register(typ, fn)
}

// Unregister removes the first cleanup matching (typ, fn) without running
// it. typ == AllCleanups matches any type.
func (p *Pool) Unregister(typ CleanupType, fn CleanupFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unregister(typ, fn)
}

// UnregisterType removes every cleanup matching typ without running them.
func (p *Pool) UnregisterType(typ CleanupType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unregisterType(typ)
}

// RunCleanup unregisters the first cleanup matching (typ, fn), then
// invokes fn once outside of the pool's lock, mirroring
// apr_sms_cleanup_run's unregister-then-invoke-unlocked discipline.
// Returns ErrInvalid, without invoking fn, if nothing matched.
func (p *Pool) RunCleanup(typ CleanupType, fn CleanupFunc) error {
	p.mu.Lock()
	err := p.unregister(typ, fn)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if cerr := fn(); cerr != nil {
		return wrapErr(p, "RunCleanup", cerr)
	}
	return nil
}

// RunCleanupType invokes every cleanup matching typ while still holding the
// pool's lock, leaving them registered, mirroring
// apr_sms_cleanup_run_type's still-locked invocation.
func (p *Pool) RunCleanupType(typ CleanupType) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runCleanupTypeLocked(typ)
}

// snapshotChildrenLocked detaches and returns the full list of direct
// children, called with p.mu already held.
func (p *Pool) snapshotChildrenLocked() []*Pool {
	var out []*Pool
	for n := p.firstChild; n != nil; n = n.next {
		out = append(out, n)
	}
	p.firstChild = nil
	for _, c := range out {
		c.prev = nil
		c.next = nil
	}
	return out
}

// unlinkChildLocked removes c from p's child list, called with p.mu held.
func (p *Pool) unlinkChildLocked(c *Pool) {
	if c.prev != nil {
		c.prev.next = c.next
	} else if p.firstChild == c {
		p.firstChild = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	}
	c.prev = nil
	c.next = nil
}

// doChildCleanups recurses depth-first over a sibling list, running each
// node's own cleanups (without freeing: the memory is about to be
// reclaimed wholesale by the ancestor's Reset/Destroy) and then its
// pre-destroy hook, mirroring apr_sms_do_child_cleanups exactly.
func doChildCleanups(first *Pool) {
	for n := first; n != nil; n = n.next {
		doChildCleanups(n.firstChild)
		n.mu.Lock()
		n.runAllLocked()
		n.mu.Unlock()
		if n.preDestroy != nil {
			n.preDestroy(n)
		}
	}
}

// Reset runs every cleanup in the subtree (without freeing individual
// allocations) and then asks the policy to reclaim everything in bulk.
// Only valid on a tracking pool; non-tracking pools return
// ErrNotImplemented, mirroring apr_sms_reset's !reset_fn check.
func (p *Pool) Reset() error {
	if !p.tracking() {
		return wrapErr(p, "Reset", ErrNotImplemented)
	}

	p.mu.Lock()
	children := p.snapshotChildrenLocked()
	p.mu.Unlock()

	for _, c := range children {
		doChildCleanups(c)
	}

	p.mu.Lock()
	cleanupErr := p.runAllLocked()
	// Every child, including the accounting child, was just wiped out by
	// the cleanup cascade above: restore the Invariant 4 default before
	// the bulk reclaim.
	p.accounting = p
	resetErr := p.policy.Reset()
	p.mu.Unlock()

	if resetErr != nil {
		return wrapErr(p, "Reset", resetErr)
	}
	if cleanupErr != nil {
		return wrapErr(p, "Reset", cleanupErr)
	}
	return nil
}

// Destroy tears the pool and its subtree down permanently.
//
// Tracking pools reclaim their whole subtree in bulk: every descendant's
// cleanups run (but nothing is individually freed), then the policy's
// Destroy reclaims every chunk at once.
//
// Non-tracking pools have no bulk mechanism, so each child is destroyed
// for real, recursively, before this pool frees its own cleanup
// bookkeeping and detaches from its parent.
//
// Unlike apr_sms_destroy, which holds sms_lock for the whole call
// (including the recursive apr_sms_destroy(child) calls), this
// implementation only holds p.mu around mutations of p's own state. A
// child's Destroy needs to briefly lock its parent (this node) to detach
// itself; holding p.mu across the recursive call would self-deadlock
// against a non-reentrant sync.Mutex. See DESIGN.md.
func (p *Pool) Destroy() error {
	tracking := p.tracking()

	p.mu.Lock()
	children := p.snapshotChildrenLocked()
	p.mu.Unlock()

	var cleanupErr error
	if tracking {
		for _, c := range children {
			doChildCleanups(c)
		}
		p.mu.Lock()
		cleanupErr = p.runAllLocked()
		p.mu.Unlock()
	} else {
		// Accounting-aware destroy order (apr_sms_destroy's non-tracking
		// branch): the accounting child, if external, was already detached
		// from the tree by snapshotChildrenLocked above — step (a)'s
		// "temporarily unlink it to defer its destruction" falls out of
		// that for free. We now (b) destroy every other real child, then
		// (c) either run-then-bulk-reclaim via a tracking accounting
		// child, or free cleanup nodes one at a time via a non-tracking
		// one — in both cases destroying the accounting child last.
		acc := p.accounting
		external := acc != p
		for _, c := range children {
			if external && c == acc {
				continue
			}
			if err := c.Destroy(); err != nil && cleanupErr == nil {
				cleanupErr = err
			}
		}

		p.mu.Lock()
		var err error
		if external && acc.tracking() {
			// acc.Destroy() below reclaims every cleanup-node backing
			// allocation in one shot; don't free them individually here.
			err = p.runAllLocked()
		} else {
			err = p.runCleanupsFreeing()
		}
		p.mu.Unlock()
		if cleanupErr == nil {
			cleanupErr = err
		}

		if external {
			if err := acc.Destroy(); err != nil && cleanupErr == nil {
				cleanupErr = err
			}
			p.mu.Lock()
			p.accounting = p
			p.mu.Unlock()
		}
	}

	if p.parent != nil {
		p.parent.mu.Lock()
		p.parent.unlinkChildLocked(p)
		p.parent.mu.Unlock()
	}

	if p.preDestroy != nil {
		p.preDestroy(p)
	}

	var destroyErr error
	if tracking {
		destroyErr = p.policy.Destroy()
	}

	p.mu.Lock()
	p.destroyed = true
	p.mu.Unlock()

	if cleanupErr != nil {
		return wrapErr(p, "Destroy", cleanupErr)
	}
	if destroyErr != nil {
		return wrapErr(p, "Destroy", destroyErr)
	}
	return nil
}
