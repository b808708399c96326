package server

import (
	"bufio"
	"net"
)

type protocolType int

const (
	protocolRaw protocolType = iota
	protocolWebSocket
)

func (p protocolType) String() string {
	if p == protocolWebSocket {
		return "websocket"
	}
	return "raw"
}

// detectProtocol peeks at the first byte to tell a WebSocket handshake from
// a raw packet stream. Raw packets start with a packet type (0-3 or 255),
// never with the 'G' of "GET".
func detectProtocol(conn net.Conn) (protocolType, *bufio.Reader, error) {
	reader := bufio.NewReader(conn)

	peek, err := reader.Peek(1)
	if err != nil {
		return protocolRaw, reader, err
	}
	if peek[0] == 'G' {
		return protocolWebSocket, reader, nil
	}
	return protocolRaw, reader, nil
}
