// Package transport provides the encrypted byte stream a chat client talks
// over, with the blocking and non-blocking read modes the client's
// background watcher relies on.
package transport

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// Mode selects how Recv waits for data.
type Mode int

const (
	// Blocking reads wait up to the supplied timeout.
	Blocking Mode = iota
	// NonBlocking reads return ErrWouldBlock when nothing is ready.
	NonBlocking
)

// String returns the string representation of Mode
func (m Mode) String() string {
	if m == NonBlocking {
		return "non-blocking"
	}
	return "blocking"
}

const (
	// DefaultTimeout bounds blocking reads and every write.
	DefaultTimeout = 5 * time.Second
	// nonBlockingWait is how long a NonBlocking read lets already-arrived
	// bytes surface before reporting ErrWouldBlock.
	nonBlockingWait = 5 * time.Millisecond
)

// stream is the byte-level connection under a Session.
type stream interface {
	write(p []byte, deadline time.Time) (int, error)
	read(p []byte, deadline time.Time) (int, error)
	poll(timeout time.Duration) (bool, error)
	healthy() bool
	close() error
	remoteAddr() net.Addr
}

// Session is one encrypted connection to the chat server. Send, Recv and
// SetMode must be serialized by the caller; PollReadable and Healthy may be
// called concurrently with them.
type Session struct {
	stream       stream
	mode         Mode
	writeTimeout time.Duration
	logger       *slog.Logger
	closed       atomic.Bool
}

// NewSession wraps an established connection. TLS connections over TCP get
// poll(2) based readiness; other connections fall back to a timed probe.
func NewSession(conn net.Conn, logger *slog.Logger) *Session {
	return newSession(newConnStream(conn), logger)
}

func newSession(s stream, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		stream:       s,
		writeTimeout: DefaultTimeout,
		logger:       logger,
	}
}

// Send writes data in full.
func (s *Session) Send(data []byte) error {
	if s.closed.Load() {
		return &Error{Op: "send", Err: net.ErrClosed}
	}
	n, err := s.stream.write(data, time.Now().Add(s.writeTimeout))
	if err != nil {
		return wrap("send", err)
	}
	if n != len(data) {
		return &Error{Op: "send", Err: io.ErrShortWrite}
	}
	s.logger.Debug("sent packet", "bytes", n)
	return nil
}

// Recv reads at most max bytes. In Blocking mode it waits up to timeout and
// fails with a timeout *Error when nothing arrives. In NonBlocking mode it
// returns ErrWouldBlock instead. A closed stream is reported as an *Error
// wrapping io.EOF.
func (s *Session) Recv(max int, timeout time.Duration) ([]byte, error) {
	if s.closed.Load() {
		return nil, &Error{Op: "recv", Err: net.ErrClosed}
	}
	if max <= 0 {
		return nil, fmt.Errorf("transport: invalid read size %d", max)
	}

	wait := timeout
	if s.mode == NonBlocking {
		wait = nonBlockingWait
	} else if wait <= 0 {
		wait = DefaultTimeout
	}

	buf := make([]byte, max)
	n, err := s.stream.read(buf, time.Now().Add(wait))
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	if s.mode == NonBlocking && errors.Is(err, os.ErrDeadlineExceeded) {
		return nil, ErrWouldBlock
	}
	return nil, wrap("recv", err)
}

// PollReadable waits up to timeout for incoming data without consuming it.
func (s *Session) PollReadable(timeout time.Duration) (bool, error) {
	if s.closed.Load() {
		return false, &Error{Op: "poll", Err: net.ErrClosed}
	}
	ready, err := s.stream.poll(timeout)
	if err != nil {
		return false, wrap("poll", err)
	}
	return ready, nil
}

// SetMode switches how subsequent reads wait.
func (s *Session) SetMode(mode Mode) {
	s.mode = mode
}

// Mode returns the current read mode.
func (s *Session) Mode() Mode {
	return s.mode
}

// Healthy reports whether the underlying socket has no pending error and
// the peer has not closed it.
func (s *Session) Healthy() bool {
	return !s.closed.Load() && s.stream.healthy()
}

// RemoteAddr returns the server address.
func (s *Session) RemoteAddr() net.Addr {
	return s.stream.remoteAddr()
}

// Close closes the connection. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.stream.close(); err != nil && !IsExpectedClose(err) {
		return wrap("close", err)
	}
	return nil
}
