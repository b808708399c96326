//go:build !unix

package transport

import (
	"syscall"
	"time"
)

func pollReadable(_ syscall.RawConn, timeout time.Duration) (bool, error) {
	return probeWait(timeout), nil
}

func socketError(syscall.RawConn) error {
	return nil
}
