package client

import (
	"strings"

	"github.com/omochice/chatroom/internal/session"
	"github.com/omochice/chatroom/pkg/protocol"
)

var (
	connectedOnly = []session.Phase{session.Connected}
	notInRoom     = []session.Phase{session.Connected, session.Authenticated}
	loggedIn      = []session.Phase{session.Authenticated}
	inRoom        = []session.Phase{session.InRoom}
	anyConnected  = []session.Phase{session.Connected, session.Authenticated, session.InRoom}
)

// Register creates a new account. It does not log in.
func (c *Client) Register(username, password string) error {
	p, err := protocol.RegisterRequest(username, password)
	if err != nil {
		return err
	}
	_, err = c.do(request{op: "register", packet: p, allowed: notInRoom})
	return err
}

// Login authenticates the session as username.
func (c *Client) Login(username, password string) error {
	p, err := protocol.LoginRequest(username, password)
	if err != nil {
		return err
	}
	_, err = c.do(request{
		op:      "login",
		packet:  p,
		allowed: connectedOnly,
		apply: func(s *session.State, _ string) error {
			return s.Login(username)
		},
	})
	return err
}

// Logout ends the authenticated session but keeps the connection.
func (c *Client) Logout() error {
	_, err := c.do(request{
		op:      "logout",
		packet:  protocol.LogoutRequest(),
		allowed: loggedIn,
		apply: func(s *session.State, _ string) error {
			return s.Logout()
		},
	})
	return err
}

// DeleteUser removes an account. Requires admin privileges.
func (c *Client) DeleteUser(username string) error {
	p, err := protocol.DeleteUserRequest(username)
	if err != nil {
		return err
	}
	_, err = c.do(request{op: "delete user", packet: p, allowed: loggedIn})
	return err
}

// GrantAdmin gives username admin privileges.
func (c *Client) GrantAdmin(username string) error {
	p, err := protocol.AdminRequest(username)
	if err != nil {
		return err
	}
	_, err = c.do(request{op: "grant admin", packet: p, allowed: loggedIn})
	return err
}

// RevokeAdmin removes admin privileges from username.
func (c *Client) RevokeAdmin(username string) error {
	p, err := protocol.AdminRemoveRequest(username)
	if err != nil {
		return err
	}
	_, err = c.do(request{op: "revoke admin", packet: p, allowed: loggedIn})
	return err
}

// ListRooms returns the server's room listing as sent, one room per line.
func (c *Client) ListRooms() (string, error) {
	return c.do(request{
		op:      "list rooms",
		packet:  protocol.ListRoomsRequest(),
		reply:   accumulatedReply,
		allowed: loggedIn,
	})
}

// CreateRoom creates a chat room.
func (c *Client) CreateRoom(room string) error {
	p, err := protocol.CreateRoomRequest(room)
	if err != nil {
		return err
	}
	_, err = c.do(request{op: "create room", packet: p, allowed: loggedIn})
	return err
}

// DeleteRoom removes a chat room that nobody is in.
func (c *Client) DeleteRoom(room string) error {
	p, err := protocol.DeleteRoomRequest(room)
	if err != nil {
		return err
	}
	_, err = c.do(request{op: "delete room", packet: p, allowed: loggedIn})
	return err
}

// Join enters room and returns its recent history. The history lines, and
// any broadcast that arrived with them, are also delivered to
// OnChatMessage before Join returns.
func (c *Client) Join(room string) ([]string, error) {
	p, err := protocol.JoinRequest(room)
	if err != nil {
		return nil, err
	}

	var lines []string
	_, err = c.do(request{
		op:      "join",
		packet:  p,
		reply:   accumulatedReply,
		allowed: loggedIn,
		apply: func(s *session.State, payload string) error {
			if err := s.Join(room); err != nil {
				return err
			}
			var broadcasts []string
			lines, broadcasts = splitHistory(payload)
			if len(broadcasts) > 0 {
				s.LastSeen = broadcasts[len(broadcasts)-1]
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	c.notifyChat(lines)
	return lines, nil
}

// splitHistory separates the newline-delimited history from broadcasts
// that were coalesced onto the end of the join reply. It returns every
// line in order and, separately, the broadcast ones.
func splitHistory(payload string) (lines, broadcasts []string) {
	segments := protocol.SplitBroadcast(payload)
	if len(segments) == 0 {
		return nil, nil
	}
	history := segments[0]
	if strings.HasPrefix(payload, string(protocol.Delimiter)) {
		history = ""
		broadcasts = segments
	} else {
		broadcasts = segments[1:]
	}
	for _, line := range strings.Split(history, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return append(lines, broadcasts...), broadcasts
}

// Leave exits the current room.
func (c *Client) Leave() error {
	_, err := c.do(request{
		op:      "leave",
		packet:  protocol.LeaveRequest(),
		allowed: inRoom,
		apply: func(s *session.State, _ string) error {
			return s.Leave()
		},
	})
	return err
}

// SendChat sends text to the current room. The server does not reply.
func (c *Client) SendChat(text string) error {
	p, err := protocol.ChatRequest(text)
	if err != nil {
		return err
	}
	_, err = c.do(request{op: "chat", packet: p, reply: noReply, allowed: inRoom})
	return err
}

func (c *Client) quit() error {
	_, err := c.do(request{
		op:      "quit",
		packet:  protocol.QuitRequest(),
		allowed: anyConnected,
	})
	return err
}
