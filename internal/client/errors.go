package client

import (
	"errors"
	"fmt"

	"github.com/omochice/chatroom/internal/session"
	"github.com/omochice/chatroom/pkg/protocol"
)

var (
	// ErrDisconnected is returned by every operation once the session has
	// lost its connection.
	ErrDisconnected = errors.New("not connected to server")
	// ErrServerDisconnected is returned when a bad reply turns out to be a
	// symptom of the server going away.
	ErrServerDisconnected = errors.New("server disconnected")
	// ErrInvalidPacket is returned when the reply could not be understood.
	// The session stays usable.
	ErrInvalidPacket = errors.New("invalid packet received from server")
)

// PreconditionError reports an operation attempted in the wrong phase.
// Nothing was sent.
type PreconditionError struct {
	Op    string
	Phase session.Phase
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: not allowed while %s", e.Op, e.Phase)
}

// RejectError is a well-formed refusal from the server.
type RejectError struct {
	Op     string
	Reason protocol.Reason
}

func (e *RejectError) Error() string {
	return e.Reason.Message()
}

// IsReject reports whether err is a RejectError carrying reason.
func IsReject(err error, reason protocol.Reason) bool {
	var rejectErr *RejectError
	return errors.As(err, &rejectErr) && rejectErr.Reason == reason
}

// IsPrecondition reports whether err is a PreconditionError.
func IsPrecondition(err error) bool {
	var preconditionErr *PreconditionError
	return errors.As(err, &preconditionErr)
}
