// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport implements the pluggable back-end contract, plus
// the two provided body types (StreamBody, UnixBody) and concrete
// byte-stream/datagram backends.
package transport

import (
	"context"

	"code.hybscloud.com/rpcpeer"
)

// Protocol describes whether a transport's underlying medium preserves
// message boundaries on its own (SeqPacket/Datagram) or requires an
// added length prefix to recover them from a byte stream
// (BinaryStream). Each concrete transport stores the Protocol it was
// built for and consults preservesBoundary to decide whether to frame
// with a length prefix.
type Protocol uint8

const (
	BinaryStream Protocol = 1
	SeqPacket    Protocol = 2
	Datagram     Protocol = 3
)

// preservesBoundary reports whether p's medium already delimits
// messages, so no length prefix needs to be added or parsed.
func (p Protocol) preservesBoundary() bool {
	switch p {
	case SeqPacket, Datagram:
		return true
	default:
		return false
	}
}

// Transport sends and receives one whole message at a time. Each call
// to Send or Receive completes atomically: implementations may buffer
// internally, but partial messages are never observed by the caller.
//
// Implementations are exclusively owned by one peer engine; the engine
// is the sole caller of Send/Receive/Close.
type Transport[B rpcpeer.Body] interface {
	Send(ctx context.Context, msg rpcpeer.Message[B]) error
	Receive(ctx context.Context) (rpcpeer.Message[B], error)
	Close() error
}

// MaxPayloadLen is the largest payload this codec can represent: the
// length prefix is a 32-bit unsigned word and must also leave room for
// the 12-byte header.
const MaxPayloadLen = 1<<32 - 1 - rpcpeer.HeaderLen
