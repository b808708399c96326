package client

import (
	"errors"
	"fmt"
	"slices"

	"github.com/omochice/chatroom/internal/session"
	"github.com/omochice/chatroom/internal/transport"
	"github.com/omochice/chatroom/pkg/protocol"
)

// replyMode selects how the reply to a request is read.
type replyMode int

const (
	// fixedReply reads one message of at most protocol.RejectSize bytes.
	fixedReply replyMode = iota
	// accumulatedReply keeps reading until the stream goes quiet for
	// ChunkTimeout. Slow replies can be cut short; the protocol has no
	// length prefix to do better.
	accumulatedReply
	// noReply sends and returns.
	noReply
)

// request describes one command exchange.
type request struct {
	op      string
	packet  protocol.Packet
	reply   replyMode
	allowed []session.Phase
	// apply performs the state transition once the server acknowledges.
	apply func(s *session.State, payload string) error
}

// result is what an exchange leaves to do after the lock is released.
type result struct {
	payload string
	lost    string
}

func (c *Client) do(r request) (string, error) {
	res, err := c.exchange(r)
	c.notifyDisconnected(res.lost)
	return res.payload, err
}

func (c *Client) exchange(r request) (res result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase == session.Disconnected {
		return res, ErrDisconnected
	}
	if !slices.Contains(r.allowed, c.state.Phase) {
		return res, &PreconditionError{Op: r.op, Phase: c.state.Phase}
	}

	c.conn.SetMode(transport.Blocking)
	c.logger.Debug("sending request", "op", r.op, "header", r.packet.Header())
	if err := c.conn.Send(r.packet.Encode()); err != nil {
		res.lost = c.disconnectLocked(err)
		return res, fmt.Errorf("%s: %w", r.op, err)
	}
	if r.reply == noReply {
		return res, nil
	}

	data, err := c.receive(r.reply)
	if err != nil {
		res.lost = c.disconnectLocked(err)
		return res, fmt.Errorf("%s: %w", r.op, err)
	}

	h, decodeErr := protocol.DecodeHeader(data)
	if decodeErr == nil && h == r.packet.ExpectedAck() {
		res.payload = protocol.PayloadText(data)
		if r.apply != nil {
			if err := r.apply(&c.state, res.payload); err != nil {
				return res, fmt.Errorf("%s: %w", r.op, err)
			}
		}
		c.logger.Debug("request acknowledged", "op", r.op, "bytes", len(data))
		return res, nil
	}

	if decodeErr == nil && c.isReject(r.packet, h) {
		c.logger.Info("request rejected", "op", r.op, "reason", h.Reason.Message())
		return res, &RejectError{Op: r.op, Reason: h.Reason}
	}

	if !c.conn.Healthy() {
		res.lost = c.disconnectLocked(ErrServerDisconnected)
		return res, fmt.Errorf("%s: %w", r.op, ErrServerDisconnected)
	}
	if decodeErr != nil {
		c.logger.Warn("malformed reply", "op", r.op, "error", decodeErr)
		return res, fmt.Errorf("%s: %w: %w", r.op, ErrInvalidPacket, decodeErr)
	}
	c.logger.Warn("unexpected reply", "op", r.op, "header", h)
	return res, fmt.Errorf("%s: %w: got %v", r.op, ErrInvalidPacket, h)
}

// isReject reports whether h is a meaningful refusal of sent. Rejects for
// another request kind, and the server's complaint that our own packet was
// invalid, count as invalid packets instead.
func (c *Client) isReject(sent protocol.Packet, h protocol.Header) bool {
	if h.Opcode != protocol.OpReject || h.Reason == protocol.ReasonInvalidPacket {
		return false
	}
	if h.Type == protocol.TypeFail && h.SubType == protocol.SubFail {
		return true
	}
	return h.Type == sent.Type && h.SubType == sent.SubType
}

func (c *Client) receive(mode replyMode) ([]byte, error) {
	if mode == fixedReply {
		return c.conn.Recv(protocol.RejectSize, c.opts.RequestTimeout)
	}

	var buf []byte
	timeout := c.opts.RequestTimeout
	for {
		chunk, err := c.conn.Recv(protocol.MaxReadSize, timeout)
		if err != nil {
			var transportErr *transport.Error
			if len(buf) > 0 && errors.As(err, &transportErr) && (transportErr.Timeout() || transportErr.Closed()) {
				return buf, nil
			}
			return nil, err
		}
		buf = append(buf, chunk...)
		timeout = c.opts.ChunkTimeout
	}
}
