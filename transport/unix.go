// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net"
)

// DialUnixStream dials a Unix-domain stream socket and returns a
// length-prefixed StreamBody transport, generalizing
// framer/netopts.go's WithReadUnix/WithWriteUnix constructors.
func DialUnixStream(ctx context.Context, path string, maxBodyLen int) (*StreamTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	return NewStreamTransport(conn, maxBodyLen), nil
}

// UnixStreamFactory accepts Unix-domain stream connections.
type UnixStreamFactory struct {
	ln         net.Listener
	maxBodyLen int
}

// ListenUnixStream binds path as a Unix-domain stream socket.
func ListenUnixStream(path string, maxBodyLen int) (*UnixStreamFactory, error) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &UnixStreamFactory{ln: ln, maxBodyLen: maxBodyLen}, nil
}

// Accept implements listener.Factory.
func (f *UnixStreamFactory) Accept(ctx context.Context) (*StreamTransport, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := f.ln.Accept()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return NewStreamTransport(r.conn, f.maxBodyLen), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new connections.
func (f *UnixStreamFactory) Close() error { return f.ln.Close() }

// DialUnixPacket dials a SOCK_SEQPACKET Unix-domain socket and returns a
// UnixBody transport carrying ancillary file descriptors, since
// datagram transports may carry ancillary data alongside the body.
// Generalizes
// framer/netopts.go's WithReadUnixPacket/WithWriteUnixPacket pairing.
func DialUnixPacket(ctx context.Context, path string, maxBodyLen int) (*UnixPacketTransport, error) {
	raddr, err := net.ResolveUnixAddr("unixpacket", path)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unixpacket", raddr.String())
	if err != nil {
		return nil, err
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return nil, net.UnknownNetworkError("unixpacket")
	}
	return NewUnixPacketTransport(uc, maxBodyLen), nil
}

// UnixPacketFactory accepts SOCK_SEQPACKET connections.
type UnixPacketFactory struct {
	ln         *net.UnixListener
	maxBodyLen int
}

// ListenUnixPacket binds path as a SOCK_SEQPACKET Unix-domain socket.
func ListenUnixPacket(path string, maxBodyLen int) (*UnixPacketFactory, error) {
	addr, err := net.ResolveUnixAddr("unixpacket", path)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unixpacket", addr)
	if err != nil {
		return nil, err
	}
	return &UnixPacketFactory{ln: ln, maxBodyLen: maxBodyLen}, nil
}

// Accept implements listener.Factory.
func (f *UnixPacketFactory) Accept(ctx context.Context) (*UnixPacketTransport, error) {
	type result struct {
		conn *net.UnixConn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := f.ln.AcceptUnix()
		ch <- result{conn, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return NewUnixPacketTransport(r.conn, f.maxBodyLen), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new connections.
func (f *UnixPacketFactory) Close() error { return f.ln.Close() }
