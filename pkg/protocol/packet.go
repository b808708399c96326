// Package protocol implements the fixed-layout binary packet format spoken by
// the chat room server.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

// PacketType is the first header byte.
type PacketType uint8

const (
	TypeRooms   PacketType = 0
	TypeAccount PacketType = 1
	TypeChat    PacketType = 2
	TypeSession PacketType = 3
	TypeFail    PacketType = 255
)

// String returns the string representation of PacketType
func (t PacketType) String() string {
	switch t {
	case TypeRooms:
		return "ROOMS"
	case TypeAccount:
		return "ACCOUNT"
	case TypeChat:
		return "CHAT"
	case TypeSession:
		return "SESSION"
	case TypeFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// SubType is the second header byte. Values are numbered globally rather
// than per packet type.
type SubType uint8

const (
	SubJoin SubType = iota
	SubList
	SubCreate
	SubRegister
	SubLogin
	SubAdmin
	SubChat
	SubFail
	SubDelete
	SubAdminRemove
	SubLeave
	SubLogout
	SubQuit
)

var subTypeNames = [...]string{
	SubJoin:        "JOIN",
	SubList:        "LIST",
	SubCreate:      "CREATE",
	SubRegister:    "REGISTER",
	SubLogin:       "LOGIN",
	SubAdmin:       "ADMIN",
	SubChat:        "CHAT",
	SubFail:        "FAIL",
	SubDelete:      "DELETE",
	SubAdminRemove: "ADMIN_REMOVE",
	SubLeave:       "LEAVE",
	SubLogout:      "LOGOUT",
	SubQuit:        "QUIT",
}

// String returns the string representation of SubType
func (s SubType) String() string {
	if int(s) < len(subTypeNames) {
		return subTypeNames[s]
	}
	return "UNKNOWN"
}

// Opcode is the third header byte.
type Opcode uint8

const (
	OpRequest Opcode = iota
	OpResponse
	OpReject
	OpAcknowledge
)

// String returns the string representation of Opcode
func (o Opcode) String() string {
	switch o {
	case OpRequest:
		return "REQUEST"
	case OpResponse:
		return "RESPONSE"
	case OpReject:
		return "REJECT"
	case OpAcknowledge:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

const (
	// HeaderSize is the length of the common (type, subtype, opcode) header.
	HeaderSize = 3
	// RejectSize is the length of a Reject reply: header plus reason byte.
	RejectSize = HeaderSize + 1
	// BufferSize is the read buffer used for payload-carrying replies.
	BufferSize = 1024
	// MaxReadSize bounds a single read of a broadcast or accumulating reply.
	MaxReadSize = BufferSize + RejectSize
)

// Delimiter separates chat lines inside a coalesced broadcast payload. It is
// the Chat/Chat/Acknowledge header of the following broadcast.
var Delimiter = []byte{byte(TypeChat), byte(SubChat), byte(OpAcknowledge)}

// ErrMalformed is returned when received bytes cannot be decoded as a header.
var ErrMalformed = errors.New("malformed packet")

// Header is a decoded packet header. Reason is only meaningful when Opcode
// is OpReject.
type Header struct {
	Type    PacketType
	SubType SubType
	Opcode  Opcode
	Reason  Reason
}

// Matches reports whether h carries the given type, subtype and opcode.
func (h Header) Matches(t PacketType, s SubType, o Opcode) bool {
	return h.Type == t && h.SubType == s && h.Opcode == o
}

func (h Header) String() string {
	if h.Opcode == OpReject {
		return fmt.Sprintf("%s/%s/%s(%d)", h.Type, h.SubType, h.Opcode, h.Reason)
	}
	return fmt.Sprintf("%s/%s/%s", h.Type, h.SubType, h.Opcode)
}

// Packet is one protocol message. Payload holds everything after the header,
// already laid out in fixed-width fields for requests.
type Packet struct {
	Type    PacketType
	SubType SubType
	Opcode  Opcode
	Payload []byte
}

// Header returns the packet's header.
func (p Packet) Header() Header {
	h := Header{Type: p.Type, SubType: p.SubType, Opcode: p.Opcode}
	if p.Opcode == OpReject && len(p.Payload) > 0 {
		h.Reason = Reason(p.Payload[0])
	}
	return h
}

// ExpectedAck returns the header of a successful reply to the request p.
func (p Packet) ExpectedAck() Header {
	return Header{Type: p.Type, SubType: p.SubType, Opcode: OpAcknowledge}
}

// Encode returns the wire bytes of the packet.
func (p Packet) Encode() []byte {
	buf := make([]byte, 0, HeaderSize+len(p.Payload))
	buf = append(buf, byte(p.Type), byte(p.SubType), byte(p.Opcode))
	return append(buf, p.Payload...)
}

// DecodeHeader reads the header from the start of data. A Reject needs one
// more byte for its reason code. Short input yields ErrMalformed.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes, need %d", ErrMalformed, len(data), HeaderSize)
	}
	h := Header{
		Type:    PacketType(data[0]),
		SubType: SubType(data[1]),
		Opcode:  Opcode(data[2]),
	}
	if h.Opcode != OpReject {
		return h, nil
	}
	if len(data) < RejectSize {
		return Header{}, fmt.Errorf("%w: reject of %d bytes, need %d", ErrMalformed, len(data), RejectSize)
	}
	h.Reason = Reason(data[3])
	return h, nil
}

// Decode splits data into a packet. The payload aliases data.
func Decode(data []byte) (Packet, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Packet{}, err
	}
	return Packet{Type: h.Type, SubType: h.SubType, Opcode: h.Opcode, Payload: data[HeaderSize:]}, nil
}

// PayloadText returns the text carried after the header with NUL padding
// removed.
func PayloadText(data []byte) string {
	if len(data) <= HeaderSize {
		return ""
	}
	return string(bytes.TrimRight(data[HeaderSize:], "\x00"))
}

// SplitBroadcast splits a broadcast payload into its chat lines, in order.
// Empty segments are dropped.
func SplitBroadcast(payload string) []string {
	parts := bytes.Split([]byte(payload), Delimiter)
	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		part = bytes.Trim(part, "\x00")
		if len(part) == 0 {
			continue
		}
		lines = append(lines, string(part))
	}
	return lines
}

// Acknowledge builds a success reply for the given request kind.
func Acknowledge(t PacketType, s SubType, payload []byte) Packet {
	return Packet{Type: t, SubType: s, Opcode: OpAcknowledge, Payload: payload}
}

// Reject builds a reject reply carrying reason.
func Reject(t PacketType, s SubType, reason Reason) Packet {
	return Packet{Type: t, SubType: s, Opcode: OpReject, Payload: []byte{byte(reason)}}
}

// Failure is the generic reply to a request the server cannot parse.
func Failure(reason Reason) Packet {
	return Reject(TypeFail, SubFail, reason)
}
