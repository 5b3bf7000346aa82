// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcpeer

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind discriminates the taxonomy of errors a peer or request handle
// can surface. It is exported so callers can switch on the kind of a
// terminal error without string matching.
type Kind uint8

const (
	// KindUnknown is the zero value; never returned by this package.
	KindUnknown Kind = iota
	// KindIO reports an underlying transport I/O error.
	KindIO
	// KindMalformedFrame reports a length field too small, or a
	// truncated body, for the declared frame size.
	KindMalformedFrame
	// KindUnexpectedEnd reports EOF in the middle of a frame.
	KindUnexpectedEnd
	// KindUnknownMessageType reports an undefined message-type discriminant.
	KindUnknownMessageType
	// KindMessageTooLarge reports a body exceeding Config.MaxBodyLen.
	KindMessageTooLarge
	// KindDuplicateRequestID reports a peer reusing an active Received ID.
	KindDuplicateRequestID
	// KindNoFreeRequestID reports allocator exhaustion (all 2^32 Sent IDs in flight).
	KindNoFreeRequestID
	// KindPeerClosed reports that the engine has shut down.
	KindPeerClosed
	// KindAborted reports a locally synthesized cancellation response.
	KindAborted
	// KindApplication reports a Response carrying an application-defined
	// negative service_id that is not the reserved AbortedServiceID.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindMalformedFrame:
		return "malformed_frame"
	case KindUnexpectedEnd:
		return "unexpected_end"
	case KindUnknownMessageType:
		return "unknown_message_type"
	case KindMessageTooLarge:
		return "message_too_large"
	case KindDuplicateRequestID:
		return "duplicate_request_id"
	case KindNoFreeRequestID:
		return "no_free_request_id"
	case KindPeerClosed:
		return "peer_closed"
	case KindAborted:
		return "aborted"
	case KindApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Error is the single opaque error type returned by every read/write
// operation in this module. Errors are not remembered per handle: after
// the engine shuts down, every later operation reports KindPeerClosed,
// but a SentRequestHandle whose request ended with an error Response
// (KindApplication or KindAborted) reports KindPeerClosed, not the same
// Kind again, on a later receive.
type Error struct {
	kind  Kind
	cause error
}

// NewError builds an Error of the given kind wrapping cause. cause may
// be nil, in which case Error() falls back to the kind's description.
func NewError(kind Kind, cause error) *Error {
	return &Error{kind: kind, cause: cause}
}

// Errorf builds an Error of the given kind with a formatted message as
// its cause.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, cause: errors.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("rpcpeer: %s: %s", e.kind, e.cause)
	}
	return fmt.Sprintf("rpcpeer: %s", e.kind)
}

// Kind reports the error's taxonomy discriminator.
func (e *Error) Kind() Kind { return e.kind }

// Unwrap exposes the wrapped cause so errors.Is/errors.As keep working.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error of the same Kind, enabling
// errors.Is(err, rpcpeer.NewError(rpcpeer.KindPeerClosed, nil)) style checks.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.kind == e.kind
}

// WrapIO wraps a raw transport error as a KindIO Error unless it is
// already an *Error (in which case it is returned unchanged, preserving
// the original Kind).
func WrapIO(err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return NewError(KindIO, err)
}
