package transport

import (
	"crypto/tls"
	"net"
	"sync/atomic"
	"syscall"
	"time"
)

// connStream reads and writes a net.Conn directly, usually a *tls.Conn.
type connStream struct {
	conn net.Conn
	raw  syscall.RawConn
	// buffered is set after a read returned data. crypto/tls hands out one
	// record per Read, so further records pulled off the socket with it may
	// be waiting where poll(2) cannot see them. The next read that comes up
	// empty clears it.
	buffered atomic.Bool
}

func newConnStream(conn net.Conn) *connStream {
	raw, _ := rawConn(conn)
	return &connStream{conn: conn, raw: raw}
}

// rawConn returns the socket under conn, looking through TLS.
func rawConn(conn net.Conn) (syscall.RawConn, bool) {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		conn = tlsConn.NetConn()
	}
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (c *connStream) write(p []byte, deadline time.Time) (int, error) {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}
	return c.conn.Write(p)
}

func (c *connStream) read(p []byte, deadline time.Time) (int, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(p)
	c.buffered.Store(n > 0)
	return n, err
}

func (c *connStream) poll(timeout time.Duration) (bool, error) {
	if c.buffered.Load() {
		return true, nil
	}
	if c.raw == nil {
		return probeWait(timeout), nil
	}
	return pollReadable(c.raw, timeout)
}

func (c *connStream) healthy() bool {
	if c.raw == nil {
		return true
	}
	return socketError(c.raw) == nil
}

func (c *connStream) close() error {
	return c.conn.Close()
}

func (c *connStream) remoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// probeWait stands in for poll(2) on connections without a descriptor: it
// waits a short while and reports readiness so the caller attempts a read.
func probeWait(timeout time.Duration) bool {
	const step = 50 * time.Millisecond
	if timeout > step {
		timeout = step
	}
	time.Sleep(timeout)
	return true
}
