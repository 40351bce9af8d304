//go:build solaris || illumos

package pollset

import (
	"time"

	"golang.org/x/sys/unix"
)

// solarisEventPort is the fully-specified PollSet backend, a direct
// translation of original_source/poll/unix/port.c's use of
// port_create/port_associate/port_dissociate/port_getn. Event ports are
// natively one-shot: once an association fires it must be re-associated,
// which is exactly the add-ring re-arm PollSet.Poll already performs, so
// associate here is unconditionally "(re)associate", with no ADD vs MOD
// distinction to track.
type solarisEventPort struct {
	fd int
}

func newBackend() backend {
	return &solarisEventPort{fd: -1}
}

func (b *solarisEventPort) open(capHint int) error {
	fd, err := unix.PortCreate()
	if err != nil {
		return err
	}
	b.fd = fd
	return nil
}

func eventToNative(e Event) int {
	var rv int
	if e&EventRead != 0 {
		rv |= unix.POLLIN
	}
	if e&EventPriority != 0 {
		rv |= unix.POLLPRI
	}
	if e&EventWrite != 0 {
		rv |= unix.POLLOUT
	}
	if e&EventError != 0 {
		rv |= unix.POLLERR
	}
	if e&EventHangup != 0 {
		rv |= unix.POLLHUP
	}
	if e&EventInvalid != 0 {
		rv |= unix.POLLNVAL
	}
	return rv
}

func nativeToEvent(e int32) Event {
	var rv Event
	if int(e)&unix.POLLIN != 0 {
		rv |= EventRead
	}
	if int(e)&unix.POLLPRI != 0 {
		rv |= EventPriority
	}
	if int(e)&unix.POLLOUT != 0 {
		rv |= EventWrite
	}
	if int(e)&unix.POLLERR != 0 {
		rv |= EventError
	}
	if int(e)&unix.POLLHUP != 0 {
		rv |= EventHangup
	}
	if int(e)&unix.POLLNVAL != 0 {
		rv |= EventInvalid
	}
	return rv
}

func (b *solarisEventPort) associate(fd uintptr, events Event, index int) error {
	return unix.PortAssociate(b.fd, unix.PORT_SOURCE_FD, int(fd), eventToNative(events), uintptr(index))
}

func (b *solarisEventPort) dissociate(fd uintptr) error {
	return unix.PortDissociate(b.fd, unix.PORT_SOURCE_FD, int(fd))
}

func (b *solarisEventPort) getn(dst []readyEvent, timeout time.Duration) (int, error) {
	var tvptr *unix.Timespec
	var tv unix.Timespec
	if timeout >= 0 {
		tv = unix.NsecToTimespec(int64(timeout))
		tvptr = &tv
	}

	events := make([]unix.PortEvent, len(dst))
	nget := uint32(1)
	err := unix.PortGetn(b.fd, events, uint32(len(events)), &nget, tvptr)
	if err == unix.ETIME {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n := int(nget)
	for i := 0; i < n; i++ {
		dst[i] = readyEvent{
			index:  int(events[i].User),
			events: nativeToEvent(int32(events[i].Events)),
		}
	}
	return n, nil
}

func (b *solarisEventPort) close() error {
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}
