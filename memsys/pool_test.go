package memsys

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_NewChildRequiresValidPolicy(t *testing.T) {
	root := NewRoot(WithPolicy(Heap()))
	_, err := NewChild(root)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPool_NewChildNilParent(t *testing.T) {
	_, err := NewChild(nil, WithPolicy(Heap()))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestPool_TreeLinksAndUnlink(t *testing.T) {
	root := NewRoot(WithName("root"), WithPolicy(Heap()))
	a, err := NewChild(root, WithName("a"), WithPolicy(Heap()))
	require.NoError(t, err)
	b, err := NewChild(root, WithName("b"), WithPolicy(Heap()))
	require.NoError(t, err)

	assert.Equal(t, root, a.Parent())
	assert.Equal(t, root, b.Parent())
	assert.True(t, root.IsAncestor(a))
	assert.True(t, root.IsAncestor(b))
	assert.False(t, a.IsAncestor(b))
	assert.True(t, a.IsAncestor(a))

	require.NoError(t, a.Destroy())

	// b should still be reachable and destroyable after a is gone
	require.NoError(t, b.Destroy())
}

func TestPool_MallocCallocRealloc(t *testing.T) {
	p := NewRoot(WithPolicy(Heap()))

	b, err := p.Malloc(0)
	require.NoError(t, err)
	assert.Nil(t, b)

	z, err := p.Calloc(8)
	require.NoError(t, err)
	require.Len(t, z, 8)
	for _, v := range z {
		assert.Equal(t, byte(0), v)
	}

	m, err := p.Malloc(4)
	require.NoError(t, err)

	// Realloc(nil, n) behaves as Malloc(n)
	r, err := p.Realloc(nil, 4)
	require.NoError(t, err)
	require.Len(t, r, 4)

	// Realloc(mem, 0) behaves as Free(mem)
	r2, err := p.Realloc(m, 0)
	require.NoError(t, err)
	assert.Nil(t, r2)
}

func TestPool_ArenaHasNoRealloc(t *testing.T) {
	p := NewRoot(WithPolicy(Arena(64)))
	b, err := p.Malloc(8)
	require.NoError(t, err)

	_, err = p.Realloc(b, 16)
	assert.ErrorIs(t, err, ErrNotImplemented)

	// Free on a tracking (arena) pool is a documented no-op success
	assert.NoError(t, p.Free(b))
}

func TestPool_ResetOnNonTrackingIsNotImplemented(t *testing.T) {
	p := NewRoot(WithPolicy(Heap()))
	err := p.Reset()
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestPool_ResetRunsCleanupsAndReclaims(t *testing.T) {
	root := NewRoot(WithName("arena-root"), WithPolicy(Arena(64)))

	var ranRoot, ranChild bool
	require.NoError(t, root.Register(AllCleanups, func() error { ranRoot = true; return nil }))

	child, err := NewChild(root, WithName("child"), WithPolicy(Heap()))
	require.NoError(t, err)
	require.NoError(t, child.Register(AllCleanups, func() error { ranChild = true; return nil }))

	require.NoError(t, root.Reset())
	assert.True(t, ranRoot)
	assert.True(t, ranChild)

	// after reset the child is gone from the tree
	b, err := root.Malloc(16)
	require.NoError(t, err)
	require.Len(t, b, 16)
}

func TestPool_DestroyTrackingRunsSubtreeCleanupsAndPreDestroy(t *testing.T) {
	var preDestroyed []string
	root := NewRoot(
		WithName("root"),
		WithPolicy(Arena(64)),
		WithPreDestroy(func(p *Pool) { preDestroyed = append(preDestroyed, p.Name()) }),
	)

	child, err := NewChild(root, WithName("child"), WithPolicy(Heap()),
		WithPreDestroy(func(p *Pool) { preDestroyed = append(preDestroyed, p.Name()) }),
	)
	require.NoError(t, err)

	var childCleaned bool
	require.NoError(t, child.Register(AllCleanups, func() error { childCleaned = true; return nil }))

	require.NoError(t, root.Destroy())
	assert.True(t, childCleaned)
	assert.Contains(t, preDestroyed, "child")
	assert.Contains(t, preDestroyed, "root")
}

func TestPool_DestroyNonTrackingRecursesIntoChildren(t *testing.T) {
	root := NewRoot(WithName("root"), WithPolicy(Heap()))
	child, err := NewChild(root, WithName("child"), WithPolicy(Heap()))
	require.NoError(t, err)

	var grandchildCleaned bool
	grandchild, err := NewChild(child, WithName("grandchild"), WithPolicy(Heap()))
	require.NoError(t, err)
	require.NoError(t, grandchild.Register(AllCleanups, func() error { grandchildCleaned = true; return nil }))

	require.NoError(t, root.Destroy())
	assert.True(t, grandchildCleaned)
}

func TestPool_AccountingDefaultsToSelf(t *testing.T) {
	root := NewRoot(WithPolicy(Heap()))
	assert.Same(t, root, root.Accounting())

	child, err := NewChild(root, WithPolicy(Heap()))
	require.NoError(t, err)
	assert.Same(t, child, child.Accounting(), "a freshly-initialized pool's accounting is itself")
	assert.Same(t, root, root.Accounting(), "an ordinary child must not become its parent's accounting pool")
}

func TestPool_WithAccountingPromotesDirectChild(t *testing.T) {
	root := NewRoot(WithPolicy(Heap()))
	acc, err := NewChild(root, WithName("acc"), WithAccounting(), WithPolicy(Arena(64)))
	require.NoError(t, err)
	assert.Same(t, acc, root.Accounting())
}

// TestPool_AccountingPromotionDestroysAccountingLast exercises the
// Accounting-promotion Testable Property: a non-tracking pool A with
// accounting pointing to a tracking child B; destroying A must destroy B
// last, and A's cleanup-node bookkeeping must be reclaimed in bulk via B
// rather than freed individually.
func TestPool_AccountingPromotionDestroysAccountingLast(t *testing.T) {
	a := NewRoot(WithName("A"), WithPolicy(Heap()))

	b, err := NewChild(a, WithName("B"), WithAccounting(), WithPolicy(Arena(64)))
	require.NoError(t, err)

	other, err := NewChild(a, WithName("other"), WithPolicy(Heap()))
	require.NoError(t, err)

	var order []string
	a.preDestroy = func(p *Pool) { order = append(order, p.Name()) }
	b.preDestroy = func(p *Pool) { order = append(order, p.Name()) }
	other.preDestroy = func(p *Pool) { order = append(order, p.Name()) }

	var aCleanupRan bool
	require.NoError(t, a.Register(AllCleanups, func() error { aCleanupRan = true; return nil }))

	require.NoError(t, a.Destroy())

	require.True(t, aCleanupRan)
	require.Len(t, order, 3)
	assert.Equal(t, "other", order[0], "non-accounting children are destroyed first")
	assert.Equal(t, "B", order[1], "the accounting child is destroyed last among children")
	assert.Equal(t, "A", order[2], "A's own pre-destroy fires only after its accounting child is gone")
	assert.Same(t, a, a.Accounting(), "accounting reverts to self once the promoted child is destroyed")
}

func TestPool_LockUnlockIsSeparateFromStructuralLock(t *testing.T) {
	p := NewRoot(WithPolicy(Heap()))

	// Default Lock/Unlock is a no-op: calling it and then mutating the
	// same pool on the same goroutine must not deadlock.
	p.Lock()
	require.NoError(t, p.Register(AllCleanups, func() error { return nil }))
	p.Unlock()

	var locked, unlocked bool
	up := NewRoot(WithPolicy(Heap()), WithUserLock(funcLocker{
		lock:   func() { locked = true },
		unlock: func() { unlocked = true },
	}))
	up.Lock()
	assert.True(t, locked)
	up.Unlock()
	assert.True(t, unlocked)
}

type funcLocker struct {
	lock, unlock func()
}

func (f funcLocker) Lock()   { f.lock() }
func (f funcLocker) Unlock() { f.unlock() }

func TestPool_DestroyDoesNotDeadlockWithDeepTree(t *testing.T) {
	root := NewRoot(WithName("root"), WithPolicy(Heap()))
	cur := root
	for i := 0; i < 50; i++ {
		var err error
		cur, err = NewChild(cur, WithPolicy(Heap()))
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() { done <- root.Destroy() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Destroy deadlocked on a deep tree")
	}
}
