//go:build darwin

package pollset

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// kqueueBackend is the Darwin alternate to solarisEventPort, grounded on the
// teacher's FastPoller (poller_darwin.go) for the Kqueue/Kevent call shape
// and its eventsToKevents helper for building one Kevent_t per requested
// filter. Unlike epoll, EV_ONESHOT causes kqueue to auto-remove a knote the
// instant it fires, so re-arming is always EV_ADD again — there is no
// ADD-vs-MOD distinction to track here, unlike the Linux backend.
type kqueueBackend struct {
	kq       int
	eventBuf []unix.Kevent_t
}

func newBackend() backend {
	return &kqueueBackend{kq: -1}
}

func (b *kqueueBackend) open(capHint int) error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	b.kq = kq
	b.eventBuf = make([]unix.Kevent_t, capHint)
	return nil
}

// filtersFor returns one Kevent_t template per filter implied by events,
// mirroring eventsToKevents. Priority/error/hangup have no dedicated kqueue
// filter and ride along on whichever read/write filter is requested.
func filtersFor(fd uintptr, events Event, flags uint16, udata uint64) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&(EventRead|EventPriority) != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_READ,
			Flags:  flags,
			Udata:  (*byte)(unsafe.Pointer(uintptr(udata))),
		})
	}
	if events&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{
			Ident:  uint64(fd),
			Filter: unix.EVFILT_WRITE,
			Flags:  flags,
			Udata:  (*byte)(unsafe.Pointer(uintptr(udata))),
		})
	}
	return kevents
}

func (b *kqueueBackend) associate(fd uintptr, events Event, index int) error {
	kevents := filtersFor(fd, events, unix.EV_ADD|unix.EV_ENABLE|unix.EV_ONESHOT, uint64(index))
	if len(kevents) == 0 {
		return nil
	}
	_, err := unix.Kevent(b.kq, kevents, nil, nil)
	return err
}

func (b *kqueueBackend) dissociate(fd uintptr) error {
	kevents := filtersFor(fd, EventRead|EventWrite, unix.EV_DELETE, 0)
	// best-effort: a filter never armed returns ENOENT, which apr_pollset
	// treats the same as port_dissociate failing on an unassociated fd.
	_, err := unix.Kevent(b.kq, kevents, nil, nil)
	return err
}

func (b *kqueueBackend) getn(dst []readyEvent, timeout time.Duration) (int, error) {
	var tsptr *unix.Timespec
	var ts unix.Timespec
	if timeout >= 0 {
		ts = unix.NsecToTimespec(int64(timeout))
		tsptr = &ts
	}

	n, err := unix.Kevent(b.kq, nil, b.eventBuf, tsptr)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		ev := b.eventBuf[i]
		var e Event
		switch ev.Filter {
		case unix.EVFILT_READ:
			e = EventRead
		case unix.EVFILT_WRITE:
			e = EventWrite
		}
		if ev.Flags&unix.EV_EOF != 0 {
			e |= EventHangup
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			e |= EventError
		}
		dst[i] = readyEvent{
			index:  int(uintptr(unsafe.Pointer(ev.Udata))),
			events: e,
		}
	}
	return n, nil
}

func (b *kqueueBackend) close() error {
	if b.kq < 0 {
		return nil
	}
	err := unix.Close(b.kq)
	b.kq = -1
	return err
}
