// Package session tracks where a client connection is in its lifecycle.
package session

import "fmt"

// Phase is the session's position in its lifecycle.
type Phase int

const (
	Disconnected Phase = iota
	Connected
	Authenticated
	InRoom
)

// String returns the string representation of Phase
func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	case InRoom:
		return "in room"
	default:
		return "unknown"
	}
}

// TransitionError reports a transition attempted from the wrong phase.
type TransitionError struct {
	Event string
	From  Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Event, e.From)
}

// State is the client's session state. It is not safe for concurrent use;
// the owner guards it with the same lock as the transport.
type State struct {
	Phase    Phase
	Username string
	Room     string
	// LastSeen is the most recent chat line delivered while in a room. It
	// suppresses a payload the server sends twice in a row.
	LastSeen string
}

func (s *State) move(event string, from, to Phase) error {
	if s.Phase != from {
		return &TransitionError{Event: event, From: s.Phase}
	}
	s.Phase = to
	return nil
}

// Connect marks the transport as established.
func (s *State) Connect() error {
	return s.move("connect", Disconnected, Connected)
}

// Login records a successful login.
func (s *State) Login(username string) error {
	if err := s.move("log in", Connected, Authenticated); err != nil {
		return err
	}
	s.Username = username
	return nil
}

// Logout records a successful logout.
func (s *State) Logout() error {
	if err := s.move("log out", Authenticated, Connected); err != nil {
		return err
	}
	s.Username = ""
	return nil
}

// Join records entry into room and resets the duplicate cursor.
func (s *State) Join(room string) error {
	if err := s.move("join", Authenticated, InRoom); err != nil {
		return err
	}
	s.Room = room
	s.LastSeen = ""
	return nil
}

// Leave records leaving the current room.
func (s *State) Leave() error {
	if err := s.move("leave", InRoom, Authenticated); err != nil {
		return err
	}
	s.Room = ""
	s.LastSeen = ""
	return nil
}

// Disconnect moves to the terminal phase from anywhere.
func (s *State) Disconnect() {
	*s = State{Phase: Disconnected}
}

// Connected reports whether the transport is usable.
func (s *State) Connected() bool { return s.Phase != Disconnected }

// LoggedIn reports whether a user is authenticated.
func (s *State) LoggedIn() bool { return s.Phase == Authenticated || s.Phase == InRoom }

// Chatting reports whether the session is inside a room.
func (s *State) Chatting() bool { return s.Phase == InRoom }
