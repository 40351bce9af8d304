package pollset

// pfdElem is one slot in the PollSet's pre-sized element slice, the Go
// analogue of pfd_elem_t: a descriptor plus ring-membership links. Rather
// than the C ring's back-reference-to-pointer-slot trick, membership is an
// arena-index handle (the slot's own index in PollSet.elems), and prev/next
// are indices into that same slice — grounded on catrate/ring.go's
// index-arithmetic style, adapted from one growable circular buffer to a
// four-way intrusive linked list since the ring discipline needs O(1)
// splice of a single element between rings, not push/pop at the ends of
// one buffer.
type pfdElem struct {
	desc      Descriptor
	rtnEvents Event
	ring      int8
	prev      int
	next      int
}

// Ring membership tags, recorded on each pfdElem so Remove can tell which
// ring currently holds an element without a linear scan (port.c instead
// compares descriptor identity while walking query_ring then add_ring).
const (
	ringIDNone int8 = iota
	ringIDQuery
	ringIDAdd
	ringIDFree
	ringIDDead
)

const ringNil = -1

// ringList is an intrusive doubly linked list over indices into a shared
// []pfdElem backing slice. It implements the semantics of the four
// APR_RING_HEAD rings (query/add/free/dead) declared in
// original_source/poll/unix/port.c's apr_pollset_t.
type ringList struct {
	head, tail int
}

func newRingList() ringList {
	return ringList{head: ringNil, tail: ringNil}
}

func (r *ringList) empty() bool {
	return r.head == ringNil
}

// insertTail appends idx to the ring, tagging it with id, mirroring
// APR_RING_INSERT_TAIL.
func (r *ringList) insertTail(elems []pfdElem, idx int, id int8) {
	elems[idx].prev = r.tail
	elems[idx].next = ringNil
	elems[idx].ring = id
	if r.tail != ringNil {
		elems[r.tail].next = idx
	} else {
		r.head = idx
	}
	r.tail = idx
}

// remove splices idx out of the ring, mirroring APR_RING_REMOVE. idx must
// currently be a member of this ring.
func (r *ringList) remove(elems []pfdElem, idx int) {
	e := &elems[idx]
	if e.prev != ringNil {
		elems[e.prev].next = e.next
	} else {
		r.head = e.next
	}
	if e.next != ringNil {
		elems[e.next].prev = e.prev
	} else {
		r.tail = e.prev
	}
	e.prev, e.next = ringNil, ringNil
	e.ring = ringIDNone
}

// popFirst removes and returns the first element's index, or ringNil if
// the ring is empty, mirroring APR_RING_FIRST + APR_RING_REMOVE.
func (r *ringList) popFirst(elems []pfdElem) int {
	idx := r.head
	if idx != ringNil {
		r.remove(elems, idx)
	}
	return idx
}

// concat appends all of other onto r, retags the moved elements with id,
// and empties other, mirroring APR_RING_CONCAT (used to shift the dead
// ring onto the free ring at the end of every Poll).
func (r *ringList) concat(elems []pfdElem, other *ringList, id int8) {
	if other.head == ringNil {
		return
	}
	for i := other.head; i != ringNil; i = elems[i].next {
		elems[i].ring = id
	}
	if r.tail != ringNil {
		elems[r.tail].next = other.head
		elems[other.head].prev = r.tail
	} else {
		r.head = other.head
	}
	r.tail = other.tail
	other.head, other.tail = ringNil, ringNil
}

// forEach visits every index currently in the ring in order. The callback
// must not mutate this specific ring's membership; callers needing to
// remove while iterating should collect indices first.
func (r *ringList) forEach(elems []pfdElem, fn func(idx int)) {
	for i := r.head; i != ringNil; i = elems[i].next {
		fn(i)
	}
}
