package pollset

import (
	"sync"
	"time"

	"github.com/joeycumines/go-apr/internal/obslog"
	"github.com/joeycumines/go-apr/memsys"
)

// PollSet is a portable readiness-notification engine: a pluggable backend
// handle plus four intrusive rings (query/add/free/dead) over a single
// pre-sized []pfdElem slice, grounded on
// original_source/poll/unix/port.c's apr_pollset_t.
type PollSet struct {
	mu    sync.Mutex
	flags Flags

	elems []pfdElem
	index map[fdKey]int

	query ringList
	add   ringList
	free  ringList
	dead  ringList

	be backend

	resultBuf []Result
	readyBuf  []readyEvent

	wakeup   *wakeupPipe
	wakeupOn bool

	pool *memsys.Pool
}

// Create builds a PollSet sized for up to size concurrent descriptors
// (plus one extra internal slot if FlagWakeable is set), and opens its
// backend, mirroring apr_pollset_create.
func Create(size int, opts ...Option) (*PollSet, error) {
	var cfg pollsetConfig
	for _, o := range opts {
		o(&cfg)
	}

	wakeable := cfg.flags&FlagWakeable != 0
	if wakeable {
		size++
	}

	ps := &PollSet{
		flags:     cfg.flags,
		elems:     make([]pfdElem, 0, size),
		index:     make(map[fdKey]int, size),
		query:     newRingList(),
		add:       newRingList(),
		free:      newRingList(),
		dead:      newRingList(),
		resultBuf: make([]Result, 0, size),
		readyBuf:  make([]readyEvent, 0, size),
		be:        newBackend(),
	}

	if err := ps.be.open(size); err != nil {
		return nil, wrapErr("Create", ErrNoMem)
	}

	if wakeable {
		wp, err := newWakeupPipe()
		if err != nil {
			ps.be.close()
			return nil, wrapErr("Create", err)
		}
		ps.wakeup = wp
		ps.wakeupOn = true
		if err := ps.Add(Descriptor{Kind: KindFile, FD: wp.readFD(), Events: EventRead}); err != nil {
			wp.close()
			ps.be.close()
			return nil, wrapErr("Create", err)
		}
	}

	if cfg.pool != nil {
		ps.pool = cfg.pool
		cfg.pool.Register(memsys.AllCleanups, func() error { return ps.Destroy() })
	}

	return ps, nil
}

// Destroy closes the backend and, if wakeable, both ends of the wakeup
// pipe, mirroring backend_cleanup.
func (ps *PollSet) Destroy() error {
	ps.lockRings()
	defer ps.unlockRings()

	err := ps.be.close()
	if ps.wakeupOn {
		ps.wakeup.close()
	}
	return wrapErr("Destroy", err)
}

func (ps *PollSet) lockRings() {
	if ps.flags&FlagThreadSafe != 0 {
		ps.mu.Lock()
	}
}

func (ps *PollSet) unlockRings() {
	if ps.flags&FlagThreadSafe != 0 {
		ps.mu.Unlock()
	}
}

// allocElem reuses a slot from the free ring, or grows elems, and returns
// its index, mirroring apr_pollset_add's free_ring-first allocation.
func (ps *PollSet) allocElem(d Descriptor) int {
	idx := ps.free.popFirst(ps.elems)
	if idx == ringNil {
		ps.elems = append(ps.elems, pfdElem{ring: ringIDNone, prev: ringNil, next: ringNil})
		idx = len(ps.elems) - 1
	}
	ps.elems[idx].desc = d
	return idx
}

// Add registers d for its requested events, mirroring apr_pollset_add:
// allocate (or reuse) an element, associate it with the backend, and file
// it in the query ring on success or the free ring on failure.
func (ps *PollSet) Add(d Descriptor) error {
	ps.lockRings()
	defer ps.unlockRings()

	idx := ps.allocElem(d)
	if err := ps.be.associate(d.FD, d.Events, idx); err != nil {
		ps.free.insertTail(ps.elems, idx, ringIDFree)
		return wrapErr("Add", ErrNoMem)
	}
	ps.index[d.key()] = idx
	ps.query.insertTail(ps.elems, idx, ringIDQuery)
	return nil
}

// Remove disassociates d from the backend and moves its element to the
// dead ring (not the free ring directly: it might still be referenced by
// an in-flight Poll's already-fetched native event list), mirroring
// apr_pollset_remove.
func (ps *PollSet) Remove(d Descriptor) error {
	ps.lockRings()
	defer ps.unlockRings()

	idx, ok := ps.index[d.key()]
	if !ok {
		return wrapErr("Remove", ErrNotFound)
	}
	delete(ps.index, d.key())

	dissocErr := ps.be.dissociate(d.FD)

	switch ps.elems[idx].ring {
	case ringIDQuery:
		ps.query.remove(ps.elems, idx)
	case ringIDAdd:
		ps.add.remove(ps.elems, idx)
	}
	ps.dead.insertTail(ps.elems, idx, ringIDDead)

	if dissocErr != nil {
		return wrapErr("Remove", ErrNotFound)
	}
	return nil
}

// Poll waits up to timeout (negative = forever) for at least one
// descriptor to become ready, returning their results. A poll whose only
// ready descriptor is the wakeup pipe returns (nil, ErrInterrupted),
// mirroring apr_pollset_poll's APR_EINTR branch for the wakeup pipe; if
// other descriptors are ready in the same round, their results are
// returned with a nil error.
//
// Mirrors apr_pollset_poll: first re-associate everything in the add ring
// (elements re-armed since the last Poll, including one-shot backends'
// just-fired descriptors), call the backend's getn, translate ready
// events, move each newly-ready element from query back to add (so it is
// re-armed on the next call; an element already removed to the dead ring
// still has its result reported but stays where it is), and finally shift
// the dead ring onto the free ring.
func (ps *PollSet) Poll(timeout time.Duration) ([]Result, error) {
	ps.lockRings()
	for {
		idx := ps.add.popFirst(ps.elems)
		if idx == ringNil {
			break
		}
		d := ps.elems[idx].desc
		if err := ps.be.associate(d.FD, d.Events, idx); err != nil {
			obslog.Error("pollset", "re-associate failed during Poll", err, "fd", d.FD)
		}
		ps.query.insertTail(ps.elems, idx, ringIDQuery)
	}
	ps.unlockRings()

	ps.readyBuf = ps.readyBuf[:cap(ps.readyBuf)]
	n, err := ps.be.getn(ps.readyBuf, timeout)
	if err != nil {
		ps.shiftDeadToFree()
		return nil, wrapErr("Poll", err)
	}
	if n == 0 {
		ps.shiftDeadToFree()
		return nil, wrapErr("Poll", ErrTimeUp)
	}
	ps.readyBuf = ps.readyBuf[:n]

	ps.lockRings()
	ps.resultBuf = ps.resultBuf[:0]
	interrupted := false
	for _, re := range ps.readyBuf {
		idx := re.index
		if idx < 0 || idx >= len(ps.elems) {
			continue
		}
		if ps.wakeupOn && ps.elems[idx].desc.Kind == KindFile && ps.elems[idx].desc.FD == ps.wakeup.readFD() {
			ps.wakeup.drain()
			interrupted = true
			// still re-arm the wakeup descriptor for the next Poll
			if ps.elems[idx].ring == ringIDQuery {
				ps.query.remove(ps.elems, idx)
				ps.add.insertTail(ps.elems, idx, ringIDAdd)
			}
			continue
		}
		ps.elems[idx].rtnEvents = re.events
		ps.resultBuf = append(ps.resultBuf, Result{
			Descriptor: ps.elems[idx].desc,
			Events:     re.events,
		})
		if ps.elems[idx].ring == ringIDQuery {
			ps.query.remove(ps.elems, idx)
			ps.add.insertTail(ps.elems, idx, ringIDAdd)
		}
	}
	ps.shiftDeadToFreeLocked()
	ps.unlockRings()

	if interrupted && len(ps.resultBuf) == 0 {
		return nil, wrapErr("Poll", ErrInterrupted)
	}
	return ps.resultBuf, nil
}

func (ps *PollSet) shiftDeadToFree() {
	ps.lockRings()
	ps.shiftDeadToFreeLocked()
	ps.unlockRings()
}

// shiftDeadToFreeLocked moves every Remove'd-during-this-cycle element
// onto the free ring now that Poll has finished consuming this round's
// native events, mirroring apr_pollset_poll's final APR_RING_CONCAT.
func (ps *PollSet) shiftDeadToFreeLocked() {
	ps.free.concat(ps.elems, &ps.dead, ringIDFree)
}

// Wakeup interrupts a concurrently blocked Poll call, mirroring
// apr_pollset_wakeup. Returns ErrNotWakeable if the PollSet wasn't created
// with FlagWakeable.
func (ps *PollSet) Wakeup() error {
	if !ps.wakeupOn {
		return wrapErr("Wakeup", ErrNotWakeable)
	}
	return wrapErr("Wakeup", ps.wakeup.signal())
}
