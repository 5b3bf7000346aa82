// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net"
)

// DialTCP dials addr and returns a StreamBody transport framed as a
// length-prefixed byte stream (boundaries not preserved by TCP itself).
// Generalizes framer/netopts.go's WithReadTCP/WithWriteTCP pairing of
// "TCP -> BinaryStream, BigEndian" into a constructor (the wire byte
// order here is always little-endian, not a network-byte-order
// default — see codec.go).
func DialTCP(ctx context.Context, addr string, maxBodyLen int) (*StreamTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewStreamTransport(conn, maxBodyLen), nil
}

// TCPFactory accepts TCP connections from a bound net.Listener and
// wraps each as a StreamBody transport.
type TCPFactory struct {
	ln         net.Listener
	maxBodyLen int
}

// ListenTCP binds addr and returns a Factory for accepted connections.
func ListenTCP(addr string, maxBodyLen int) (*TCPFactory, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPFactory{ln: ln, maxBodyLen: maxBodyLen}, nil
}

// Accept implements listener.Factory.
func (f *TCPFactory) Accept(ctx context.Context) (*StreamTransport, error) {
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

// Addr returns the bound listening address.
func (f *TCPFactory) Addr() net.Addr { return f.ln.Addr() }

// Close stops accepting new connections.
func (f *TCPFactory) Close() error { return f.ln.Close() }
