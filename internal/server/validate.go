package server

import "github.com/omochice/chatroom/pkg/protocol"

const (
	minUsernameLength = 1
	minPasswordLength = 5
	minRoomNameLength = 5
)

func isAlphanumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

func isPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] > '~' {
			return false
		}
	}
	return true
}

func validateUsername(name string) error {
	if len(name) < minUsernameLength || len(name) > protocol.MaxNameLength {
		return reject(protocol.ReasonUsernameLength)
	}
	if !isAlphanumeric(name) {
		return reject(protocol.ReasonUsernameChars)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > protocol.MaxNameLength {
		return reject(protocol.ReasonPasswordLength)
	}
	if !isPrintable(password) {
		return reject(protocol.ReasonPasswordChars)
	}
	return nil
}

func validateRoomName(name string) error {
	if !isAlphanumeric(name) {
		return reject(protocol.ReasonRoomChars)
	}
	if len(name) < minRoomNameLength || len(name) > protocol.MaxNameLength {
		return reject(protocol.ReasonRoomLength)
	}
	return nil
}
