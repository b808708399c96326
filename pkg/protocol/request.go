package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxNameLength is the character limit for usernames, passwords and room names.
	MaxNameLength = 30
	// NameFieldSize is the encoded width of a name field, terminator included.
	NameFieldSize = MaxNameLength + 1
	// MaxChatLength is the character limit for a chat line.
	MaxChatLength = 150
	// ChatFieldSize is the encoded width of a chat field, terminator included.
	ChatFieldSize = MaxChatLength + 1
)

// ErrFieldTooLong is matched by every *FieldTooLongError.
var ErrFieldTooLong = errors.New("field too long")

// FieldTooLongError reports content that does not fit its fixed-width field.
type FieldTooLongError struct {
	Field  string
	Max    int
	Length int
	// Bytes is set when the character count fits but the UTF-8 encoding
	// does not.
	Bytes bool
}

func (e *FieldTooLongError) Error() string {
	unit := "characters"
	if e.Bytes {
		unit = "bytes"
	}
	return fmt.Sprintf("%s must be %d characters or less (got %d %s)", e.Field, e.Max, e.Length, unit)
}

// Is reports whether target is ErrFieldTooLong.
func (e *FieldTooLongError) Is(target error) bool {
	return target == ErrFieldTooLong
}

// appendField appends value right-padded with NUL bytes to max+1 bytes.
// Content is never truncated; a value that would not fit fails instead.
func appendField(dst []byte, field, value string, max int) ([]byte, error) {
	if n := utf8.RuneCountInString(value); n > max {
		return nil, &FieldTooLongError{Field: field, Max: max, Length: n}
	}
	if len(value) > max {
		return nil, &FieldTooLongError{Field: field, Max: max, Length: len(value), Bytes: true}
	}
	dst = append(dst, value...)
	return append(dst, make([]byte, max+1-len(value))...), nil
}

// Field reads a NUL-terminated fixed-width field.
func Field(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func request(t PacketType, s SubType, payload []byte) Packet {
	return Packet{Type: t, SubType: s, Opcode: OpRequest, Payload: payload}
}

func credentials(t PacketType, s SubType, username, password string) (Packet, error) {
	payload, err := appendField(make([]byte, 0, 2*NameFieldSize), "username", username, MaxNameLength)
	if err != nil {
		return Packet{}, err
	}
	payload, err = appendField(payload, "password", password, MaxNameLength)
	if err != nil {
		return Packet{}, err
	}
	return request(t, s, payload), nil
}

func named(t PacketType, s SubType, field, value string) (Packet, error) {
	payload, err := appendField(make([]byte, 0, NameFieldSize), field, value, MaxNameLength)
	if err != nil {
		return Packet{}, err
	}
	return request(t, s, payload), nil
}

// RegisterRequest creates an account registration request.
func RegisterRequest(username, password string) (Packet, error) {
	return credentials(TypeAccount, SubRegister, username, password)
}

// LoginRequest creates a login request.
func LoginRequest(username, password string) (Packet, error) {
	return credentials(TypeAccount, SubLogin, username, password)
}

// DeleteUserRequest creates an account deletion request.
func DeleteUserRequest(username string) (Packet, error) {
	return named(TypeAccount, SubDelete, "username", username)
}

// AdminRequest grants admin privileges to username.
func AdminRequest(username string) (Packet, error) {
	return named(TypeAccount, SubAdmin, "username", username)
}

// AdminRemoveRequest revokes admin privileges from username.
func AdminRemoveRequest(username string) (Packet, error) {
	return named(TypeAccount, SubAdminRemove, "username", username)
}

// LogoutRequest creates a logout request.
func LogoutRequest() Packet {
	return request(TypeAccount, SubLogout, nil)
}

// CreateRoomRequest creates a room creation request.
func CreateRoomRequest(room string) (Packet, error) {
	return named(TypeRooms, SubCreate, "room name", room)
}

// DeleteRoomRequest creates a room deletion request.
func DeleteRoomRequest(room string) (Packet, error) {
	return named(TypeRooms, SubDelete, "room name", room)
}

// ListRoomsRequest creates a room listing request.
func ListRoomsRequest() Packet {
	return request(TypeRooms, SubList, nil)
}

// JoinRequest creates a room join request.
func JoinRequest(room string) (Packet, error) {
	return named(TypeRooms, SubJoin, "room name", room)
}

// ChatRequest creates a chat message for the current room.
func ChatRequest(text string) (Packet, error) {
	payload, err := appendField(make([]byte, 0, ChatFieldSize), "chat", text, MaxChatLength)
	if err != nil {
		return Packet{}, err
	}
	return request(TypeChat, SubChat, payload), nil
}

// LeaveRequest creates a room leave request.
func LeaveRequest() Packet {
	return request(TypeChat, SubLeave, nil)
}

// QuitRequest creates a session quit request.
func QuitRequest() Packet {
	return request(TypeSession, SubQuit, nil)
}

// RequestSize returns the fixed encoded length of a request kind.
func RequestSize(t PacketType, s SubType) (int, bool) {
	switch {
	case t == TypeAccount && (s == SubRegister || s == SubLogin):
		return HeaderSize + 2*NameFieldSize, true
	case t == TypeAccount && (s == SubDelete || s == SubAdmin || s == SubAdminRemove):
		return HeaderSize + NameFieldSize, true
	case t == TypeAccount && s == SubLogout:
		return HeaderSize, true
	case t == TypeRooms && (s == SubCreate || s == SubDelete || s == SubJoin):
		return HeaderSize + NameFieldSize, true
	case t == TypeRooms && s == SubList:
		return HeaderSize, true
	case t == TypeChat && s == SubChat:
		return HeaderSize + ChatFieldSize, true
	case t == TypeChat && s == SubLeave:
		return HeaderSize, true
	case t == TypeSession && s == SubQuit:
		return HeaderSize, true
	default:
		return 0, false
	}
}
