// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcpeer

// Body is the generic message-body parameter of the peer engine. Each
// body type is responsible for interpreting raw bytes (plus, for
// datagram transports, ancillary file descriptors) and for extracting
// an application-error description when a Response header carries a
// non-zero ServiceID.
//
// Concrete implementations (StreamBody, UnixBody) live in the transport
// package, which also owns the wire codec for each transport kind.
type Body interface {
	// Bytes returns the body's opaque payload.
	Bytes() []byte

	// Ancillary returns any out-of-band file descriptors carried
	// alongside the payload. Implementations that never carry ancillary
	// data (e.g. StreamBody) return nil.
	Ancillary() []int

	// ErrorText extracts a human-readable description from a body that
	// is known (by its Header.ServiceID) to describe a Response error.
	// ok is false when the body carries no error description.
	ErrorText() (text string, ok bool)

	// Len reports the size of Bytes() without requiring callers to
	// materialize it.
	Len() int
}
