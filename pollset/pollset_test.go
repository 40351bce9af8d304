package pollset

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a build-tag-neutral stand-in for the platform backends
// (backend_solaris.go/backend_linux.go/backend_darwin.go), letting
// PollSet's ring discipline be exercised without a real kernel facility.
type fakeBackend struct {
	opened       bool
	associations map[uintptr]struct {
		index  int
		events Event
	}
	associateErr  error
	dissociateErr error
	pending       []readyEvent
	getnErr       error
	closed        bool
	associateLog  []uintptr
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		associations: make(map[uintptr]struct {
			index  int
			events Event
		}),
	}
}

func (b *fakeBackend) open(capHint int) error {
	b.opened = true
	return nil
}

func (b *fakeBackend) associate(fd uintptr, events Event, index int) error {
	if b.associateErr != nil {
		return b.associateErr
	}
	b.associations[fd] = struct {
		index  int
		events Event
	}{index, events}
	b.associateLog = append(b.associateLog, fd)
	return nil
}

func (b *fakeBackend) dissociate(fd uintptr) error {
	if b.dissociateErr != nil {
		return b.dissociateErr
	}
	delete(b.associations, fd)
	return nil
}

func (b *fakeBackend) getn(dst []readyEvent, timeout time.Duration) (int, error) {
	if b.getnErr != nil {
		return 0, b.getnErr
	}
	n := copy(dst, b.pending)
	b.pending = nil
	return n, nil
}

func (b *fakeBackend) close() error {
	b.closed = true
	return nil
}

// newTestPollSet builds a PollSet directly around a fakeBackend, bypassing
// Create (which resolves the platform-specific newBackend()), so ring
// discipline can be unit tested on any OS.
func newTestPollSet(be backend, size int, flags Flags) *PollSet {
	return &PollSet{
		flags:     flags,
		elems:     make([]pfdElem, 0, size),
		index:     make(map[fdKey]int, size),
		query:     newRingList(),
		add:       newRingList(),
		free:      newRingList(),
		dead:      newRingList(),
		resultBuf: make([]Result, 0, size),
		readyBuf:  make([]readyEvent, 0, size),
		be:        be,
	}
}

func TestPollSet_AddInsertsIntoQueryRing(t *testing.T) {
	be := newFakeBackend()
	ps := newTestPollSet(be, 4, 0)

	d := Descriptor{Kind: KindSocket, FD: 7, Events: EventRead}
	require.NoError(t, ps.Add(d))

	idx, ok := ps.index[d.key()]
	require.True(t, ok)
	assert.Equal(t, ringIDQuery, ps.elems[idx].ring)
	assert.Contains(t, be.associations, uintptr(7))
}

func TestPollSet_AddFailureGoesToFreeRing(t *testing.T) {
	be := newFakeBackend()
	be.associateErr = errors.New("boom")
	ps := newTestPollSet(be, 4, 0)

	d := Descriptor{Kind: KindSocket, FD: 9, Events: EventRead}
	err := ps.Add(d)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoMem)

	_, ok := ps.index[d.key()]
	assert.False(t, ok)
	require.Len(t, ps.elems, 1)
	assert.Equal(t, ringIDFree, ps.elems[0].ring)
}

func TestPollSet_RemoveMovesToDeadRing(t *testing.T) {
	be := newFakeBackend()
	ps := newTestPollSet(be, 4, 0)

	d := Descriptor{Kind: KindSocket, FD: 3, Events: EventRead}
	require.NoError(t, ps.Add(d))
	require.NoError(t, ps.Remove(d))

	_, ok := ps.index[d.key()]
	assert.False(t, ok)
	assert.NotContains(t, be.associations, uintptr(3))

	idx := 0
	assert.Equal(t, ringIDDead, ps.elems[idx].ring)
}

func TestPollSet_RemoveUnknownDescriptorIsNotFound(t *testing.T) {
	be := newFakeBackend()
	ps := newTestPollSet(be, 4, 0)

	err := ps.Remove(Descriptor{Kind: KindSocket, FD: 99})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPollSet_PollReturnsResultsAndRearmsToAddRing(t *testing.T) {
	be := newFakeBackend()
	ps := newTestPollSet(be, 4, 0)

	d := Descriptor{Kind: KindSocket, FD: 5, Events: EventRead}
	require.NoError(t, ps.Add(d))
	idx := ps.index[d.key()]

	be.pending = []readyEvent{{index: idx, events: EventRead}}

	results, err := ps.Poll(time.Second)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, d.FD, results[0].Descriptor.FD)
	assert.Equal(t, EventRead, results[0].Events)
	assert.Equal(t, ringIDAdd, ps.elems[idx].ring)
}

func TestPollSet_PollRearmsAddRingBeforeGetn(t *testing.T) {
	be := newFakeBackend()
	ps := newTestPollSet(be, 4, 0)

	d := Descriptor{Kind: KindSocket, FD: 11, Events: EventRead}
	require.NoError(t, ps.Add(d))
	idx := ps.index[d.key()]

	// Simulate a prior Poll having moved this element into the add ring.
	ps.query.remove(ps.elems, idx)
	ps.add.insertTail(ps.elems, idx, ringIDAdd)
	be.associateLog = nil

	_, err := ps.Poll(time.Millisecond)
	require.ErrorIs(t, err, ErrTimeUp)

	assert.Contains(t, be.associateLog, uintptr(11))
	assert.Equal(t, ringIDQuery, ps.elems[idx].ring)
}

func TestPollSet_PollTimeoutReturnsErrTimeUp(t *testing.T) {
	be := newFakeBackend()
	ps := newTestPollSet(be, 4, 0)

	_, err := ps.Poll(time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeUp)
}

func TestPollSet_PollShiftsDeadToFreeRegardlessOfOutcome(t *testing.T) {
	be := newFakeBackend()
	ps := newTestPollSet(be, 4, 0)

	d := Descriptor{Kind: KindSocket, FD: 21, Events: EventRead}
	require.NoError(t, ps.Add(d))
	require.NoError(t, ps.Remove(d))
	require.True(t, ps.dead.head != ringNil)

	_, err := ps.Poll(time.Millisecond)
	require.ErrorIs(t, err, ErrTimeUp)

	assert.True(t, ps.dead.empty())
	assert.False(t, ps.free.empty())
}

func TestPollSet_WakeupWithoutFlagIsNotWakeable(t *testing.T) {
	be := newFakeBackend()
	ps := newTestPollSet(be, 4, 0)

	err := ps.Wakeup()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotWakeable)
}

func TestPollSet_DestroyClosesBackend(t *testing.T) {
	be := newFakeBackend()
	ps := newTestPollSet(be, 4, 0)

	require.NoError(t, ps.Destroy())
	assert.True(t, be.closed)
}
