// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rpcpeer implements the core of the Fizyr RPC peer engine: a
// bidirectional, request-multiplexed protocol layer over reliable
// byte-stream and datagram transports.
//
// A connection is represented by one peer engine, which owns the
// transport and a request tracker. Requests may be issued from either
// side; each carries interleaved updates before a single terminal
// response. Stand-alone notifications ("stream" messages) may also be
// sent in either direction without an associated request.
//
// Subpackages:
//   - transport: the Transport contract and concrete byte-stream/datagram backends
//   - tracker: the in-flight request table and ID allocator
//   - peer: the engine (read loop + command loop) and its handles
//   - listener: accepting new peers from a bound transport factory
package rpcpeer
