package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection is a client byte stream, raw or carried in WebSocket messages.
type Connection interface {
	RemoteAddr() net.Addr
	Write(data []byte) (int, error)
	Read(buf []byte) (int, error)
	Close() error
	SetWriteDeadline(t time.Time) error
}

// RawConnection reads through the buffered reader used for detection.
type RawConnection struct {
	conn   net.Conn
	reader io.Reader
}

// NewRawConnection wraps conn, reading through reader when it is non-nil.
func NewRawConnection(conn net.Conn, reader *bufio.Reader) *RawConnection {
	rc := &RawConnection{conn: conn, reader: conn}
	if reader != nil {
		rc.reader = reader
	}
	return rc
}

func (rc *RawConnection) RemoteAddr() net.Addr {
	return rc.conn.RemoteAddr()
}

func (rc *RawConnection) Write(data []byte) (int, error) {
	return rc.conn.Write(data)
}

func (rc *RawConnection) Read(buf []byte) (int, error) {
	return rc.reader.Read(buf)
}

func (rc *RawConnection) Close() error {
	return rc.conn.Close()
}

func (rc *RawConnection) SetWriteDeadline(t time.Time) error {
	return rc.conn.SetWriteDeadline(t)
}

// bufferedConn replays bytes consumed by protocol detection.
type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (bc *bufferedConn) Read(p []byte) (int, error) {
	return bc.reader.Read(p)
}

// WebSocketConnection carries the stream in binary WebSocket messages.
// Reads return message bytes in order regardless of message boundaries.
type WebSocketConnection struct {
	conn          net.Conn
	readBuffer    []byte
	readBufferPos int
	mu            sync.Mutex
	wmu           sync.Mutex
}

// UpgradeWebSocket completes the server side of the handshake.
func UpgradeWebSocket(conn net.Conn, reader *bufio.Reader) (*WebSocketConnection, error) {
	bc := &bufferedConn{Conn: conn, reader: reader}
	if _, err := ws.Upgrade(bc); err != nil {
		return nil, err
	}
	return &WebSocketConnection{conn: bc}, nil
}

func (wc *WebSocketConnection) RemoteAddr() net.Addr {
	return wc.conn.RemoteAddr()
}

func (wc *WebSocketConnection) Write(data []byte) (int, error) {
	wc.wmu.Lock()
	defer wc.wmu.Unlock()
	if err := wsutil.WriteServerBinary(wc.conn, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// wsReadWriter lets the frame reader answer pings through the write lock.
type wsReadWriter struct {
	wc *WebSocketConnection
}

func (rw wsReadWriter) Read(p []byte) (int, error) {
	return rw.wc.conn.Read(p)
}

func (rw wsReadWriter) Write(p []byte) (int, error) {
	rw.wc.wmu.Lock()
	defer rw.wc.wmu.Unlock()
	return rw.wc.conn.Write(p)
}

func (wc *WebSocketConnection) Read(buf []byte) (int, error) {
	wc.mu.Lock()
	defer wc.mu.Unlock()

	if wc.readBufferPos < len(wc.readBuffer) {
		n := copy(buf, wc.readBuffer[wc.readBufferPos:])
		wc.readBufferPos += n
		if wc.readBufferPos >= len(wc.readBuffer) {
			wc.readBuffer = nil
			wc.readBufferPos = 0
		}
		return n, nil
	}

	data, err := wsutil.ReadClientBinary(wsReadWriter{wc})
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			return 0, io.EOF
		}
		return 0, err
	}

	n := copy(buf, data)
	if n < len(data) {
		wc.readBuffer = data[n:]
		wc.readBufferPos = 0
	}
	return n, nil
}

func (wc *WebSocketConnection) Close() error {
	wc.wmu.Lock()
	_ = wc.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = wsutil.WriteServerMessage(wc.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	wc.wmu.Unlock()
	return wc.conn.Close()
}

func (wc *WebSocketConnection) SetWriteDeadline(t time.Time) error {
	return wc.conn.SetWriteDeadline(t)
}
