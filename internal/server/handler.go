package server

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/omochice/chatroom/pkg/protocol"
)

const writeTimeout = 5 * time.Second

var peerSeq atomic.Uint64

// errUnknownRequest means the stream cannot be framed any further.
var errUnknownRequest = errors.New("unknown request kind")

// readRequest reads one fixed-size request.
func readRequest(r io.Reader) (protocol.Packet, error) {
	header := make([]byte, protocol.HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return protocol.Packet{}, err
	}
	t, st := protocol.PacketType(header[0]), protocol.SubType(header[1])
	size, ok := protocol.RequestSize(t, st)
	if !ok || protocol.Opcode(header[2]) != protocol.OpRequest {
		return protocol.Packet{}, fmt.Errorf("%w: %v/%v/%v", errUnknownRequest, t, st, protocol.Opcode(header[2]))
	}

	data := make([]byte, size)
	copy(data, header)
	if _, err := io.ReadFull(r, data[protocol.HeaderSize:]); err != nil {
		return protocol.Packet{}, err
	}
	return protocol.Decode(data)
}

// serveSession runs the request loop for one client.
func (s *Server) serveSession(conn Connection) {
	peer := &Peer{
		ID:       fmt.Sprintf("peer-%d", peerSeq.Add(1)),
		Outgoing: make(chan []byte, 64),
	}
	logger := s.logger.With("peer", peer.ID, "remote", conn.RemoteAddr().String())

	if err := s.hub.Register(peer); err != nil {
		var rej *rejection
		errors.As(err, &rej)
		logger.Warn("client refused", "reason", err)
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.Write(protocol.Failure(rej.reason).Encode())
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for data := range peer.Outgoing {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := conn.Write(data); err != nil {
				logger.Debug("failed to send to client", "error", err)
				// Keep draining so senders never block on a dead peer.
				for range peer.Outgoing {
				}
				return
			}
		}
	}()

	defer func() {
		s.hub.Unregister(peer)
		close(peer.Outgoing)
		<-writerDone
		conn.Close()
		logger.Info("client disconnected", "user", peer.Username)
	}()

	for {
		req, err := readRequest(conn)
		if err != nil {
			if errors.Is(err, errUnknownRequest) {
				logger.Warn("invalid packet", "error", err)
				peer.Outgoing <- protocol.Failure(protocol.ReasonInvalidPacket).Encode()
			} else if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Debug("read failed", "error", err)
			}
			return
		}

		reply, done := s.handle(peer, req)
		if reply != nil {
			peer.Outgoing <- reply.Encode()
		}
		if done {
			return
		}
	}
}

// handle applies one request and returns the reply to send, if any, and
// whether the session is over.
func (s *Server) handle(peer *Peer, req protocol.Packet) (*protocol.Packet, bool) {
	var (
		payload string
		err     error
		done    bool
		noReply bool
	)

	switch {
	case req.Type == protocol.TypeAccount && req.SubType == protocol.SubRegister:
		err = s.hub.CreateAccount(credentials(req.Payload))
	case req.Type == protocol.TypeAccount && req.SubType == protocol.SubLogin:
		username, password := credentials(req.Payload)
		err = s.hub.Login(peer, username, password)
	case req.Type == protocol.TypeAccount && req.SubType == protocol.SubLogout:
		err = s.hub.Logout(peer)
	case req.Type == protocol.TypeAccount && req.SubType == protocol.SubAdmin:
		err = s.hub.SetAdmin(peer, protocol.Field(req.Payload), true)
	case req.Type == protocol.TypeAccount && req.SubType == protocol.SubAdminRemove:
		err = s.hub.SetAdmin(peer, protocol.Field(req.Payload), false)
	case req.Type == protocol.TypeAccount && req.SubType == protocol.SubDelete:
		err = s.hub.DeleteAccount(peer, protocol.Field(req.Payload))
	case req.Type == protocol.TypeRooms && req.SubType == protocol.SubCreate:
		err = s.hub.CreateRoom(peer, protocol.Field(req.Payload))
	case req.Type == protocol.TypeRooms && req.SubType == protocol.SubDelete:
		err = s.hub.DeleteRoom(peer, protocol.Field(req.Payload))
	case req.Type == protocol.TypeRooms && req.SubType == protocol.SubList:
		payload, err = s.hub.ListRooms(peer)
	case req.Type == protocol.TypeRooms && req.SubType == protocol.SubJoin:
		payload, err = s.hub.Join(peer, protocol.Field(req.Payload))
	case req.Type == protocol.TypeChat && req.SubType == protocol.SubChat:
		noReply = true
		_, err = s.hub.Chat(peer, protocol.Field(req.Payload))
	case req.Type == protocol.TypeChat && req.SubType == protocol.SubLeave:
		err = s.hub.Leave(peer)
	case req.Type == protocol.TypeSession && req.SubType == protocol.SubQuit:
		done = true
	}

	if err != nil {
		var rej *rejection
		if !errors.As(err, &rej) {
			rej = &rejection{reason: protocol.ReasonServerError}
		}
		s.logger.Debug("request rejected", "peer", peer.ID, "request", req.Header(), "reason", rej.reason.Message())
		if noReply {
			return nil, false
		}
		reply := protocol.Reject(req.Type, req.SubType, rej.reason)
		return &reply, done
	}

	s.logger.Debug("request handled", "peer", peer.ID, "request", req.Header())
	if noReply {
		return nil, done
	}
	reply := protocol.Acknowledge(req.Type, req.SubType, []byte(payload))
	return &reply, done
}

func credentials(payload []byte) (string, string) {
	if len(payload) < 2*protocol.NameFieldSize {
		return "", ""
	}
	return protocol.Field(payload[:protocol.NameFieldSize]), protocol.Field(payload[protocol.NameFieldSize:])
}
