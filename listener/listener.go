// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package listener binds a transport factory to a peer engine
// constructor, turning a stream of accepted connections into a stream
// of PeerHandles.
package listener

import (
	"context"

	"code.hybscloud.com/rpcpeer"
	"code.hybscloud.com/rpcpeer/peer"
	"code.hybscloud.com/rpcpeer/transport"
)

// Factory accepts one transport per call, the minimal contract a
// listener needs regardless of the underlying network. The transport
// package's TCPFactory, UnixStreamFactory and UnixPacketFactory return
// concrete transport types from Accept, so they satisfy it through the
// TCP, UnixStream and UnixPacket adapters below.
type Factory[B rpcpeer.Body] interface {
	Accept(ctx context.Context) (transport.Transport[B], error)
}

// Listener wraps a Factory, handing each accepted connection its own
// peer engine: an endpoint that produces peer-engine instances as
// connections arrive.
type Listener[B rpcpeer.Body] struct {
	factory Factory[B]
	errBody func(string) B
	opts    []rpcpeer.Option
}

// Bind pairs a Factory with the Body-specific error constructor and
// Config options every accepted connection's engine should use.
func Bind[B rpcpeer.Body](f Factory[B], errBody func(string) B, opts ...rpcpeer.Option) *Listener[B] {
	return &Listener[B]{factory: f, errBody: errBody, opts: opts}
}

// Accept blocks for the next incoming connection and returns its peer
// handle, ready for Split and use.
func (l *Listener[B]) Accept(ctx context.Context) (*peer.PeerHandle[B], error) {
	t, err := l.factory.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return peer.New[B](t, l.errBody, l.opts...), nil
}

// TCP adapts a transport.TCPFactory (whose Accept returns a concrete
// *StreamTransport) to the Factory[StreamBody] interface.
type TCP struct{ *transport.TCPFactory }

// Accept implements Factory[transport.StreamBody].
func (f TCP) Accept(ctx context.Context) (transport.Transport[transport.StreamBody], error) {
	return f.TCPFactory.Accept(ctx)
}

// UnixStream adapts a transport.UnixStreamFactory to Factory[StreamBody].
type UnixStream struct{ *transport.UnixStreamFactory }

// Accept implements Factory[transport.StreamBody].
func (f UnixStream) Accept(ctx context.Context) (transport.Transport[transport.StreamBody], error) {
	return f.UnixStreamFactory.Accept(ctx)
}

// UnixPacket adapts a transport.UnixPacketFactory to Factory[UnixBody].
type UnixPacket struct{ *transport.UnixPacketFactory }

// Accept implements Factory[transport.UnixBody].
func (f UnixPacket) Accept(ctx context.Context) (transport.Transport[transport.UnixBody], error) {
	return f.UnixPacketFactory.Accept(ctx)
}
