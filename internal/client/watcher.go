package client

import (
	"errors"
	"io"

	"github.com/omochice/chatroom/internal/transport"
	"github.com/omochice/chatroom/pkg/protocol"
)

// watch delivers room broadcasts and notices the server going away. It only
// touches the connection while holding mu, and waits for data without it.
func (c *Client) watch() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		ready, err := c.conn.PollReadable(c.opts.PollInterval)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.mu.Lock()
			lost := ""
			if c.state.Connected() {
				lost = c.disconnectLocked(err)
			}
			c.mu.Unlock()
			c.notifyDisconnected(lost)
			return
		}
		if !ready {
			continue
		}

		lines, lost, stop := c.check()
		c.notifyChat(lines)
		c.notifyDisconnected(lost)
		if stop {
			return
		}
	}
}

// check reads whatever made the connection readable. It returns chat lines
// to deliver, a disconnect reason, and whether the watcher should stop.
func (c *Client) check() (lines []string, lost string, stop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil, "", true
	default:
	}
	if !c.state.Connected() {
		return nil, "", true
	}

	c.conn.SetMode(transport.NonBlocking)
	defer c.conn.SetMode(transport.Blocking)

	if c.state.Chatting() {
		data, err := c.conn.Recv(protocol.MaxReadSize, 0)
		if errors.Is(err, transport.ErrWouldBlock) {
			return nil, "", false
		}
		if err != nil {
			return nil, c.disconnectLocked(lostReason(err)), true
		}
		return c.broadcastLines(data), "", false
	}

	data, err := c.conn.Recv(1, 0)
	switch {
	case errors.Is(err, transport.ErrWouldBlock):
		return nil, "", false
	case err != nil:
		return nil, c.disconnectLocked(lostReason(err)), true
	}
	c.logger.Warn("discarded unsolicited data outside a room", "bytes", len(data))
	return nil, "", false
}

// broadcastLines decodes a chat broadcast and applies the duplicate check.
// Must be called with mu held.
func (c *Client) broadcastLines(data []byte) []string {
	h, err := protocol.DecodeHeader(data)
	if err != nil || !h.Matches(protocol.TypeChat, protocol.SubChat, protocol.OpAcknowledge) {
		c.logger.Warn("discarded unexpected packet in room", "bytes", len(data), "header", h)
		return nil
	}

	payload := protocol.PayloadText(data)
	if payload == c.state.LastSeen {
		c.logger.Debug("dropped repeated broadcast")
		return nil
	}

	lines := protocol.SplitBroadcast(payload)
	if len(lines) > 0 {
		c.state.LastSeen = lines[len(lines)-1]
	}
	return lines
}

// lostReason reports a clean close by the server as ErrServerDisconnected.
func lostReason(err error) error {
	if errors.Is(err, io.EOF) {
		return ErrServerDisconnected
	}
	return err
}
