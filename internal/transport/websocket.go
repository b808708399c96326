package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// wsStream carries the byte stream inside binary WebSocket messages. A
// reader goroutine owns the frame decoder so read deadlines never cut a
// frame in half. It appends payloads to buf and signals ready; reads drain
// buf and polls only look at it.
type wsStream struct {
	conn   net.Conn
	raw    syscall.RawConn
	reader io.Reader

	wmu sync.Mutex

	// ready holds at most one pending wakeup.
	ready chan struct{}

	mu  sync.Mutex
	buf []byte
	err error
}

func dialWebSocket(ctx context.Context, url string, tlsConfig *tls.Config, timeout time.Duration) (*wsStream, error) {
	dialer := ws.Dialer{
		Timeout:   timeout,
		TLSConfig: tlsConfig,
	}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}
	return newWSStream(conn, br), nil
}

func newWSStream(conn net.Conn, br *bufio.Reader) *wsStream {
	raw, _ := rawConn(conn)
	w := &wsStream{
		conn:   conn,
		raw:    raw,
		reader: conn,
		ready:  make(chan struct{}, 1),
	}
	if br != nil {
		w.reader = br
	}
	go w.readLoop(br)
	return w
}

type wsReadWriter struct {
	io.Reader
	stream *wsStream
}

// Write is used by the frame reader to answer pings.
func (rw wsReadWriter) Write(p []byte) (int, error) {
	rw.stream.wmu.Lock()
	defer rw.stream.wmu.Unlock()
	return rw.stream.conn.Write(p)
}

func (w *wsStream) readLoop(br *bufio.Reader) {
	if br != nil {
		defer ws.PutReader(br)
	}

	rw := wsReadWriter{Reader: w.reader, stream: w}
	for {
		data, err := wsutil.ReadServerBinary(rw)
		w.mu.Lock()
		if err != nil {
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				err = io.EOF
			}
			w.err = err
		} else {
			w.buf = append(w.buf, data...)
		}
		w.mu.Unlock()
		w.signal()
		if err != nil {
			return
		}
	}
}

// signal leaves a wakeup for whoever waits next, dropping it if one is
// already pending.
func (w *wsStream) signal() {
	select {
	case w.ready <- struct{}{}:
	default:
	}
}

func (w *wsStream) write(p []byte, deadline time.Time) (int, error) {
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}
	if err := wsutil.WriteClientBinary(w.conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// take moves up to len(p) buffered bytes into p. Once the buffer is empty
// it reports the error that stopped the reader, if any.
func (w *wsStream) take(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	if n == 0 && w.err != nil {
		return 0, w.err
	}
	return n, nil
}

// pending reports whether a read would return without waiting.
func (w *wsStream) pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf) > 0 || w.err != nil
}

func (w *wsStream) read(p []byte, deadline time.Time) (int, error) {
	if n, err := w.take(p); n > 0 || err != nil {
		return n, err
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	for {
		select {
		case <-w.ready:
			if n, err := w.take(p); n > 0 || err != nil {
				return n, err
			}
		case <-timer.C:
			return 0, os.ErrDeadlineExceeded
		}
	}
}

// poll never consumes data. A wakeup it takes is put back while the data
// behind it is still buffered.
func (w *wsStream) poll(timeout time.Duration) (bool, error) {
	if w.pending() {
		return true, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.ready:
		if w.pending() {
			w.signal()
			return true, nil
		}
		return false, nil
	case <-timer.C:
		return false, nil
	}
}

func (w *wsStream) healthy() bool {
	w.mu.Lock()
	failed := w.err != nil
	w.mu.Unlock()
	if failed {
		return false
	}
	if w.raw == nil {
		return true
	}
	return socketError(w.raw) == nil
}

func (w *wsStream) close() error {
	w.wmu.Lock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = wsutil.WriteClientMessage(w.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	w.wmu.Unlock()

	return w.conn.Close()
}

func (w *wsStream) remoteAddr() net.Addr {
	return w.conn.RemoteAddr()
}
