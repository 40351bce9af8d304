//go:build linux

package pollset

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollBackend is the Linux alternate to solarisEventPort, grounded on the
// teacher's FastPoller (poller_linux.go) for the EpollCreate1/EpollCtl/
// EpollWait call shapes. Unlike Solaris event ports, epoll descriptors stay
// registered after firing: EPOLLONESHOT only suppresses further delivery
// until rearmed with EPOLL_CTL_MOD, so associate must track whether fd has
// been added before, choosing ADD the first time and MOD on every
// subsequent re-arm.
type epollBackend struct {
	epfd    int
	armed   map[uintptr]bool
	eventBuf []unix.EpollEvent
}

func newBackend() backend {
	return &epollBackend{epfd: -1, armed: make(map[uintptr]bool)}
}

func (b *epollBackend) open(capHint int) error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	b.epfd = fd
	b.eventBuf = make([]unix.EpollEvent, capHint)
	return nil
}

func eventToEpoll(e Event) uint32 {
	var rv uint32
	if e&EventRead != 0 {
		rv |= unix.EPOLLIN
	}
	if e&EventPriority != 0 {
		rv |= unix.EPOLLPRI
	}
	if e&EventWrite != 0 {
		rv |= unix.EPOLLOUT
	}
	if e&EventError != 0 {
		rv |= unix.EPOLLERR
	}
	if e&EventHangup != 0 {
		rv |= unix.EPOLLHUP
	}
	return rv | unix.EPOLLONESHOT
}

func epollToEvent(e uint32) Event {
	var rv Event
	if e&unix.EPOLLIN != 0 {
		rv |= EventRead
	}
	if e&unix.EPOLLPRI != 0 {
		rv |= EventPriority
	}
	if e&unix.EPOLLOUT != 0 {
		rv |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		rv |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		rv |= EventHangup
	}
	return rv
}

func (b *epollBackend) associate(fd uintptr, events Event, index int) error {
	ev := &unix.EpollEvent{
		Events: eventToEpoll(events),
		Fd:     int32(index),
	}
	op := unix.EPOLL_CTL_ADD
	if b.armed[fd] {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(b.epfd, op, int(fd), ev); err != nil {
		return err
	}
	b.armed[fd] = true
	return nil
}

func (b *epollBackend) dissociate(fd uintptr) error {
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	delete(b.armed, fd)
	return err
}

func (b *epollBackend) getn(dst []readyEvent, timeout time.Duration) (int, error) {
	timeoutMs := -1
	if timeout >= 0 {
		timeoutMs = int(timeout.Milliseconds())
	}

	n, err := unix.EpollWait(b.epfd, b.eventBuf, timeoutMs)
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
		dst[i] = readyEvent{
			index:  int(b.eventBuf[i].Fd),
			events: epollToEvent(b.eventBuf[i].Events),
		}
	}
	return n, nil
}

func (b *epollBackend) close() error {
	if b.epfd < 0 {
		return nil
	}
	err := unix.Close(b.epfd)
	b.epfd = -1
	return err
}
