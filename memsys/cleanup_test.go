package memsys

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanup_RegisterAndRunCleanupType(t *testing.T) {
	p := NewRoot(WithPolicy(Heap()))

	var ran int
	require.NoError(t, p.Register(1, func() error { ran++; return nil }))
	require.NoError(t, p.Register(1, func() error { ran++; return nil }))
	require.NoError(t, p.Register(2, func() error { ran++; return nil }))

	require.NoError(t, p.RunCleanupType(1))
	assert.Equal(t, 2, ran)

	// type-1 cleanups are still registered (RunCleanupType doesn't unregister)
	require.NoError(t, p.RunCleanupType(1))
	assert.Equal(t, 4, ran)

	require.NoError(t, p.RunCleanupType(2))
	assert.Equal(t, 5, ran)
}

func TestCleanup_RunCleanupUnregistersThenInvokes(t *testing.T) {
	p := NewRoot(WithPolicy(Heap()))

	var ran bool
	fn := func() error { ran = true; return nil }
	require.NoError(t, p.Register(AllCleanups, fn))

	require.NoError(t, p.RunCleanup(AllCleanups, fn))
	assert.True(t, ran)

	// now unregistered: a second RunCleanup on the same fn value fails to match
	ran = false
	err := p.RunCleanup(AllCleanups, fn)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.False(t, ran)
}

func TestCleanup_UnregisterNoMatchReturnsErrInvalid(t *testing.T) {
	p := NewRoot(WithPolicy(Heap()))
	err := p.Unregister(AllCleanups, func() error { return nil })
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCleanup_RegisterNilFuncIsNotImplemented(t *testing.T) {
	p := NewRoot(WithPolicy(Heap()))
	err := p.Register(AllCleanups, nil)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestCleanup_UnregisterTypeRemovesOnlyMatchingType(t *testing.T) {
	p := NewRoot(WithPolicy(Heap()))

	require.NoError(t, p.Register(1, func() error { return nil }))
	require.NoError(t, p.Register(2, func() error { return nil }))

	require.NoError(t, p.UnregisterType(1))
	err := p.UnregisterType(1)
	assert.ErrorIs(t, err, ErrInvalid)

	require.NoError(t, p.UnregisterType(2))
}

func TestCleanup_FailingAllocatorFailsRegister(t *testing.T) {
	failing := Policy{Allocator: Allocator{
		Malloc: func(n int) ([]byte, error) { return nil, ErrNoMem },
		Free:   func([]byte) error { return nil },
	}}
	p := NewRoot(WithPolicy(failing))

	err := p.Register(AllCleanups, func() error { return nil })
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMem))

	var pe *PoolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Register", pe.Op)
}

func TestCleanup_RegisterChargesAccountingNotSelf(t *testing.T) {
	root := NewRoot(WithName("root"), WithPolicy(Heap()))

	// root's own policy always fails Malloc; if Register routed the
	// cleanup-node allocation through root.policy instead of its
	// accounting pool, this would fail with ErrNoMem.
	failing := Policy{Allocator: Allocator{
		Malloc: func(n int) ([]byte, error) { return nil, ErrNoMem },
		Free:   func([]byte) error { return nil },
	}}
	root.policy = failing

	var accountingMallocs int
	acc, err := NewChild(root, WithName("acc"), WithAccounting(), WithPolicy(Policy{
		Allocator: Allocator{
			Malloc: func(n int) ([]byte, error) { accountingMallocs++; return make([]byte, n), nil },
			Free:   func([]byte) error { return nil },
		},
	}))
	require.NoError(t, err)
	assert.Same(t, acc, root.Accounting())

	require.NoError(t, root.Register(AllCleanups, func() error { return nil }))
	assert.Equal(t, 1, accountingMallocs)
}

func TestCleanup_UnregisterFreesViaAccounting(t *testing.T) {
	root := NewRoot(WithName("root"), WithPolicy(Heap()))

	var accountingFrees int
	acc, err := NewChild(root, WithName("acc"), WithAccounting(), WithPolicy(Policy{
		Allocator: Allocator{
			Malloc: func(n int) ([]byte, error) { return make([]byte, n), nil },
			Free:   func([]byte) error { accountingFrees++; return nil },
		},
	}))
	require.NoError(t, err)
	assert.Same(t, acc, root.Accounting())

	fn := func() error { return nil }
	require.NoError(t, root.Register(AllCleanups, fn))
	require.NoError(t, root.Unregister(AllCleanups, fn))
	assert.Equal(t, 1, accountingFrees)
}
