//go:build unix

package transport

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// pollReadable waits for POLLIN on the socket. Hang-ups and errors also
// count as readable so the next read observes them.
func pollReadable(raw syscall.RawConn, timeout time.Duration) (bool, error) {
	var (
		ready   bool
		pollErr error
	)
	err := raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			count, err := unix.Poll(fds, int(timeout/time.Millisecond))
			if err != nil {
				if err == unix.EINTR {
					continue
				}
				pollErr = err
				return
			}
			ready = count > 0
			return
		}
	})
	if err != nil {
		return false, err
	}
	return ready, pollErr
}

// socketError returns the pending SO_ERROR, or ECONNRESET when the peer
// has closed the connection cleanly.
func socketError(raw syscall.RawConn) error {
	var sockErr error
	err := raw.Control(func(fd uintptr) {
		code, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			sockErr = err
			return
		}
		if code != 0 {
			sockErr = unix.Errno(code)
			return
		}

		// A zero-length peek on a readable socket means the peer sent FIN.
		var peek [1]byte
		n, _, err := unix.Recvfrom(int(fd), peek[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		if err == nil && n == 0 {
			sockErr = unix.ECONNRESET
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
