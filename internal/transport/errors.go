package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// ErrWouldBlock is returned by Recv in NonBlocking mode when nothing is
// ready. It is not a transport failure.
var ErrWouldBlock = errors.New("transport: would block")

// Error is a socket, TLS or WebSocket failure. Receiving one means the
// session can no longer be trusted.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "transport " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the operation ran out of time.
func (e *Error) Timeout() bool {
	return errors.Is(e.Err, os.ErrDeadlineExceeded)
}

// Closed reports whether the peer ended the stream.
func (e *Error) Closed() bool {
	return IsExpectedClose(e.Err)
}

// IsError reports whether err is or wraps a *Error.
func IsError(err error) bool {
	var transportErr *Error
	return errors.As(err, &transportErr)
}

// IsExpectedClose reports whether err is a normal connection termination:
// EOF, closed connection, broken pipe, or connection reset.
func IsExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var transportErr *Error
	if errors.As(err, &transportErr) {
		return err
	}
	return &Error{Op: op, Err: err}
}
