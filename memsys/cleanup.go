package memsys

import "reflect"

// CleanupFunc is a callback registered against a Pool, run when the pool
// resets, destroys, or is told explicitly to run cleanups of a given type.
type CleanupFunc func() error

// CleanupType classifies a registered cleanup, mirroring apr_sms.c's
// distinction between the normal cleanup queue and child-cleanup queue: a
// cleanup of a given type only answers to RunCleanupType/UnregisterType
// calls naming that same type.
type CleanupType int

// AllCleanups matches every registered cleanup regardless of its type, used
// by UnregisterType/RunCleanupType to mean "all of them".
const AllCleanups CleanupType = -1

// cleanupNode is one entry in a pool's cleanup list. backing is a
// bookkeeping allocation charged against the pool's accounting Policy (see
// Pool.accountingMalloc), so that a test-injected failing Allocator can
// make Register fail with ErrNoMem the same way apr_sms_cleanup_register
// fails when its own node allocation fails in the original C.
type cleanupNode struct {
	next    *cleanupNode
	typ     CleanupType
	fn      CleanupFunc
	backing []byte
}

const cleanupNodeSize = 1

func sameFunc(a, b CleanupFunc) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

// register prepends a new cleanup node to p's list, charging cleanupNodeSize
// bytes against p's accounting pool so that allocator failure is observable
// (apr_sms_malloc(sms->accounting, ...)).
func (p *Pool) register(typ CleanupType, fn CleanupFunc) error {
	if fn == nil {
		return wrapErr(p, "Register", ErrNotImplemented)
	}
	backing, err := p.accountingMalloc(cleanupNodeSize)
	if err != nil {
		return wrapErr(p, "Register", err)
	}
	node := &cleanupNode{typ: typ, fn: fn, backing: backing}
	node.next = p.cleanups
	p.cleanups = node
	return nil
}

// unregister removes the first node matching (typ, fn). typ == AllCleanups
// matches any type. Returns ErrInvalid if nothing matched, mirroring
// apr_sms_cleanup_unregister's behavior when no node is found.
func (p *Pool) unregister(typ CleanupType, fn CleanupFunc) error {
	var prev *cleanupNode
	for n := p.cleanups; n != nil; n = n.next {
		if (typ == AllCleanups || n.typ == typ) && sameFunc(n.fn, fn) {
			p.unlinkCleanup(prev, n)
			p.accountingFree(n.backing)
			return nil
		}
		prev = n
	}
	return wrapErr(p, "Unregister", ErrInvalid)
}

// unregisterType removes every node matching typ (or every node at all, if
// typ == AllCleanups). Returns ErrInvalid if nothing matched.
func (p *Pool) unregisterType(typ CleanupType) error {
	var prev *cleanupNode
	matched := false
	for n := p.cleanups; n != nil; {
		next := n.next
		if typ == AllCleanups || n.typ == typ {
			p.unlinkCleanup(prev, n)
			p.accountingFree(n.backing)
			matched = true
			n = next
			continue
		}
		prev = n
		n = next
	}
	if !matched {
		return wrapErr(p, "UnregisterType", ErrInvalid)
	}
	return nil
}

func (p *Pool) unlinkCleanup(prev, n *cleanupNode) {
	if prev == nil {
		p.cleanups = n.next
	} else {
		prev.next = n.next
	}
}

// runCleanupBulk unregisters then invokes every node matching typ, outside
// of any lock the caller may still hold, mirroring apr_sms_cleanup_run's
// unregister-then-invoke-unlocked discipline. No Pool method calls it
// (Pool.RunCleanup uses unregister); a caller must not hold p.mu across
// this call.
func (p *Pool) runCleanupBulk(typ CleanupType) error {
	var head *cleanupNode
	var tail *cleanupNode
	var prev *cleanupNode
	matched := false
	for n := p.cleanups; n != nil; {
		next := n.next
		if typ == AllCleanups || n.typ == typ {
			p.unlinkCleanup(prev, n)
			p.accountingFree(n.backing)
			matched = true
			n.next = nil
			if tail == nil {
				head = n
			} else {
				tail.next = n
			}
			tail = n
			n = next
			continue
		}
		prev = n
		n = next
	}
	if !matched {
		return wrapErr(p, "RunCleanup", ErrInvalid)
	}
	for n := head; n != nil; n = n.next {
		if err := n.fn(); err != nil {
			return wrapErr(p, "RunCleanup", err)
		}
	}
	return nil
}

// runCleanupTypeLocked invokes every node matching typ while leaving them
// registered, called with p.mu already held, mirroring
// apr_sms_cleanup_run_type's still-locked invocation.
func (p *Pool) runCleanupTypeLocked(typ CleanupType) error {
	matched := false
	for n := p.cleanups; n != nil; n = n.next {
		if typ == AllCleanups || n.typ == typ {
			matched = true
			if err := n.fn(); err != nil {
				return wrapErr(p, "RunCleanupType", err)
			}
		}
	}
	if !matched {
		return wrapErr(p, "RunCleanupType", ErrInvalid)
	}
	return nil
}

// runCleanupsFreeing invokes every registered cleanup in list order, then
// frees each node's backing allocation via the pool's accounting Policy,
// used by Destroy on a non-tracking pool whose accounting is also
// non-tracking (no bulk reclamation mechanism available). Mirrors
// apr_sms_destroy's "free'ing memory as we go" branch.
func (p *Pool) runCleanupsFreeing() error {
	var first error
	for n := p.cleanups; n != nil; {
		next := n.next
		if err := n.fn(); err != nil && first == nil {
			first = err
		}
		p.accountingFree(n.backing)
		n = next
	}
	p.cleanups = nil
	return first
}

// runAllLocked invokes every registered cleanup in list order, without
// unregistering them, used by Reset/Destroy which discard the whole list
// immediately afterward. Errors from individual cleanups are swallowed
// except the first, matching apr_sms_do_cleanups' best-effort cascade.
func (p *Pool) runAllLocked() error {
	var first error
	for n := p.cleanups; n != nil; n = n.next {
		if err := n.fn(); err != nil && first == nil {
			first = err
		}
	}
	p.cleanups = nil
	return first
}
