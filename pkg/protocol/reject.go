package protocol

// Reason is the code carried by a Reject reply.
type Reason uint8

const (
	ReasonServerBusy Reason = iota
	ReasonServerError
	ReasonInvalidPacket
	ReasonUsernameLength
	ReasonUsernameChars
	ReasonPasswordLength
	ReasonPasswordChars
	ReasonUserNotFound
	ReasonIncorrectPassword
	ReasonAdminRequired
	ReasonUserExists
	ReasonRoomExists
	ReasonUserLoggedIn
	ReasonAdminSelf
	ReasonMaxUsers
	ReasonMaxClients
	ReasonMaxRooms
	ReasonNoRooms
	ReasonRoomLength
	ReasonRoomChars
	ReasonRoomReserved
	ReasonRoomNotFound
	ReasonRoomInUse
)

// UnknownReasonMessage is reported for codes outside the catalog.
const UnknownReasonMessage = "Reject code not recognized"

var reasonMessages = [...]string{
	ReasonServerBusy:        "Server Busy",
	ReasonServerError:       "Server Error",
	ReasonInvalidPacket:     "Invalid packet received by server",
	ReasonUsernameLength:    "Username out of range",
	ReasonUsernameChars:     "Username has invalid characters, try again",
	ReasonPasswordLength:    "Password out of range",
	ReasonPasswordChars:     "Password has invalid characters, try again",
	ReasonUserNotFound:      "User does not exist",
	ReasonIncorrectPassword: "Incorrect password",
	ReasonAdminRequired:     "Requires admin privileges",
	ReasonUserExists:        "User already exists",
	ReasonRoomExists:        "Room already exists",
	ReasonUserLoggedIn:      "User is already logged in",
	ReasonAdminSelf:         "You can't update your own admin status/delete your own account",
	ReasonMaxUsers:          "The server has reached its maximum number of users",
	ReasonMaxClients:        "The server has reached its maximum number of clients",
	ReasonMaxRooms:          "The server has reached its maximum number of rooms",
	ReasonNoRooms:           "The server does not currently have any rooms",
	ReasonRoomLength:        "Room name length out of range",
	ReasonRoomChars:         "Room has invalid characters, try again",
	ReasonRoomReserved:      "Room name is reserved",
	ReasonRoomNotFound:      "Room does not exist",
	ReasonRoomInUse:         "Room currently in use",
}

// Known reports whether r is in the catalog.
func (r Reason) Known() bool {
	return int(r) < len(reasonMessages)
}

// Message returns the human-readable text for r.
func (r Reason) Message() string {
	if !r.Known() {
		return UnknownReasonMessage
	}
	return reasonMessages[r]
}

// String implements fmt.Stringer
func (r Reason) String() string {
	return r.Message()
}

// ReasonMessage looks up the catalog text for a raw reason byte.
func ReasonMessage(code byte) string {
	return Reason(code).Message()
}
