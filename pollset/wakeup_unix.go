//go:build unix

package pollset

import (
	"syscall"
)

// wakeupPipe is a self-pipe used to interrupt a blocked Poll from another
// goroutine, grounded on original_source/poll/unix/port.c's
// create_wakeup_pipe/drain_wakeup_pipe, with the pipe-creation sequence
// (non-blocking + close-on-exec) grounded on the teacher's
// wakeup_darwin.go syscall.Pipe usage.
type wakeupPipe struct {
	r, w int
}

func newWakeupPipe() (*wakeupPipe, error) {
	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return nil, err
	}
	for _, fd := range fds {
		syscall.SetNonblock(fd, true)
		syscall.CloseOnExec(fd)
	}
	return &wakeupPipe{r: fds[0], w: fds[1]}, nil
}

func (w *wakeupPipe) readFD() uintptr { return uintptr(w.r) }

// signal writes a single byte to the write end, mirroring
// apr_pollset_wakeup's apr_file_putc(1, wakeup_pipe[1]).
func (w *wakeupPipe) signal() error {
	_, err := syscall.Write(w.w, []byte{1})
	if err == syscall.EAGAIN {
		// pipe buffer already has a pending wakeup byte; coalesce.
		return nil
	}
	return err
}

// drain reads and discards everything currently buffered, mirroring
// drain_wakeup_pipe's read-until-short-read loop.
func (w *wakeupPipe) drain() {
	var buf [512]byte
	for {
		n, err := syscall.Read(w.r, buf[:])
		if err != nil || n < len(buf) {
			return
		}
	}
}

func (w *wakeupPipe) close() {
	syscall.Close(w.r)
	syscall.Close(w.w)
}
