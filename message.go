// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcpeer

// MessageType identifies the role of a message on the wire. The five
// values below are normative; any other discriminant is rejected with
// an Error of KindUnknownMessageType.
type MessageType uint32

const (
	TypeRequest         MessageType = 0
	TypeResponse        MessageType = 1
	TypeRequesterUpdate MessageType = 2
	TypeResponderUpdate MessageType = 3
	TypeStream          MessageType = 4
)

// String implements fmt.Stringer for log-friendly output.
func (t MessageType) String() string {
	switch t {
	case TypeRequest:
		return "Request"
	case TypeResponse:
		return "Response"
	case TypeRequesterUpdate:
		return "RequesterUpdate"
	case TypeResponderUpdate:
		return "ResponderUpdate"
	case TypeStream:
		return "Stream"
	default:
		return "Unknown"
	}
}

// valid reports whether t is one of the five normative discriminants.
func (t MessageType) valid() bool {
	return t <= TypeStream
}

// Origin identifies which side of a connection initiated a request.
type Origin uint8

const (
	// OriginSent marks a request this peer initiated.
	OriginSent Origin = iota
	// OriginReceived marks a request the peer initiated against us.
	OriginReceived
)

func (o Origin) String() string {
	if o == OriginSent {
		return "sent"
	}
	return "received"
}

// Header is the 12-byte fixed message header carried by every message.
//
// ServiceID carries the target service for Request/Stream messages and
// the response status for Response messages (0 = success, negative =
// application error code). It must be zero for update messages.
type Header struct {
	Type      MessageType
	RequestID uint32
	ServiceID int32
}

// HeaderLen is the encoded size of Header on the wire, in bytes.
const HeaderLen = 12

// AbortedServiceID is the reserved, locally synthesized error code used
// for the Response the engine fabricates when a ReceivedRequestHandle is
// dropped without an explicit send_response call. It is distinct from
// -1, which stays available as an ordinary application error code.
const AbortedServiceID int32 = -3

// Message couples a Header with a body of type B. Body is a type
// parameter so the same engine and codec serve both StreamBody (no
// ancillary data, for byte-stream and datagram transports without file
// descriptor passing) and UnixBody (raw bytes plus ancillary file
// descriptors, for SOCK_SEQPACKET/SOCK_DGRAM Unix transports).
type Message[B Body] struct {
	Header
	Body B
}

// IsUpdate reports whether t is one of the two non-terminal update
// message types.
func (t MessageType) IsUpdate() bool {
	return t == TypeRequesterUpdate || t == TypeResponderUpdate
}
