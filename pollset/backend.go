package pollset

import "time"

// Event is the portable readiness bitmask, translated to/from each
// backend's native representation. Mirrors spec §4.3's event-mask table
// and port.c's get_event/get_revent translation functions.
type Event uint32

const (
	EventRead     Event = 1 << iota // APR_POLLIN
	EventPriority                   // APR_POLLPRI
	EventWrite                      // APR_POLLOUT
	EventError                      // APR_POLLERR
	EventHangup                     // APR_POLLHUP
	EventInvalid                    // APR_POLLNVAL
)

// DescriptorKind distinguishes a socket descriptor from a plain file
// descriptor, mirroring apr_datatype_e's APR_POLL_SOCKET/APR_POLL_FILE.
type DescriptorKind int

const (
	KindSocket DescriptorKind = iota
	KindFile
)

// Descriptor identifies a registered handle and the events it is
// interested in, the Go analogue of apr_pollfd_t's request half.
type Descriptor struct {
	Kind DescriptorKind
	FD   uintptr
	// Events is the set of events this descriptor is polled for.
	Events Event
	// Baton is caller data echoed back on Result, the Go analogue of
	// apr_pollfd_t.client_data.
	Baton any
}

func (d Descriptor) key() fdKey {
	return fdKey{kind: d.Kind, fd: d.FD}
}

type fdKey struct {
	kind DescriptorKind
	fd   uintptr
}

// Result is one readiness notification returned by Poll, the Go analogue
// of apr_pollfd_t's response half (rtnevents + the original descriptor).
type Result struct {
	Descriptor Descriptor
	Events     Event
}

// readyEvent is the backend-internal notification shape: which ring slot
// (by index into PollSet.elems) became ready, and with which native
// events translated back to the portable Event bitmask.
type readyEvent struct {
	index  int
	events Event
}

// backend is the pluggable notification primitive a PollSet drives. The
// Solaris/illumos implementation (backend_solaris.go) is grounded directly
// on original_source/poll/unix/port.c; Linux (backend_linux.go) and Darwin
// (backend_darwin.go) provide alternates grounded on the teacher's
// poller_linux.go/poller_darwin.go, demonstrating backend pluggability per
// spec §4.3's Design Notes.
type backend interface {
	// open initializes the backend, sized for up to capHint concurrent
	// associations.
	open(capHint int) error
	// associate arms fd for events, tagged with the given index so a
	// ready notification can be mapped back to its pfdElem.
	associate(fd uintptr, events Event, index int) error
	// dissociate disarms fd. Returns the native error if fd was not
	// associated; PollSet.Remove reports any such error as ErrNotFound.
	dissociate(fd uintptr) error
	// getn blocks until at least one event is ready or timeout elapses
	// (timeout < 0 waits forever), writing ready events into dst from
	// index 0 and returning the number written.
	getn(dst []readyEvent, timeout time.Duration) (int, error)
	// close releases all backend resources.
	close() error
}
