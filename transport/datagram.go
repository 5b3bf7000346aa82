// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net"

	"code.hybscloud.com/rpcpeer"
)

// DatagramTransport is a Transport[StreamBody] over a connected
// net.Conn whose underlying protocol preserves message boundaries
// per-datagram (UDP, connected via net.Dial("udp", ...)). No length
// prefix is written; the datagram boundary is the frame. Carries no
// ancillary data — see UnixPacketTransport for that.
type DatagramTransport struct {
	conn       net.Conn
	maxBodyLen int
	protocol   Protocol
	buf        []byte
}

// NewDatagramTransport wraps a connected packet-oriented net.Conn whose
// medium preserves message boundaries per-datagram (Datagram).
func NewDatagramTransport(conn net.Conn, maxBodyLen int) *DatagramTransport {
	bufLen := maxBodyLen
	if bufLen <= 0 {
		bufLen = 64 * 1024
	}
	return &DatagramTransport{conn: conn, maxBodyLen: maxBodyLen, protocol: Datagram, buf: make([]byte, rpcpeer.HeaderLen+bufLen)}
}

// Send implements transport.Transport.
func (t *DatagramTransport) Send(ctx context.Context, msg rpcpeer.Message[StreamBody]) error {
	body := msg.Body.Bytes()
	if t.maxBodyLen > 0 && len(body) > t.maxBodyLen {
		return rpcpeer.NewError(rpcpeer.KindMessageTooLarge, nil)
	}

	prefixLen := 0
	if !t.protocol.preservesBoundary() {
		prefixLen = lengthPrefixLen
	}
	frame := make([]byte, prefixLen+rpcpeer.HeaderLen+len(body))
	if prefixLen > 0 {
		encodeLengthPrefix(frame[:prefixLen], len(body))
	}
	encodeHeader(frame[prefixLen:prefixLen+rpcpeer.HeaderLen], msg.Header)
	copy(frame[prefixLen+rpcpeer.HeaderLen:], body)

	return withDeadline(ctx, t.conn, func() error {
		_, err := t.conn.Write(frame)
		if err != nil {
			return rpcpeer.NewError(rpcpeer.KindIO, err)
		}
		return nil
	})
}

// Receive implements transport.Transport.
func (t *DatagramTransport) Receive(ctx context.Context) (rpcpeer.Message[StreamBody], error) {
	var zero rpcpeer.Message[StreamBody]
	var n int
	err := withDeadline(ctx, t.conn, func() error {
		var rerr error
		n, rerr = t.conn.Read(t.buf)
		if rerr != nil {
			return rpcpeer.NewError(rpcpeer.KindIO, rerr)
		}
		return nil
	})
	if err != nil {
		return zero, err
	}
	prefixLen := 0
	if !t.protocol.preservesBoundary() {
		prefixLen = lengthPrefixLen
	}
	if n < prefixLen+rpcpeer.HeaderLen {
		return zero, rpcpeer.NewError(rpcpeer.KindMalformedFrame, nil)
	}
	header, err := decodeHeader(t.buf[prefixLen : prefixLen+rpcpeer.HeaderLen])
	if err != nil {
		return zero, err
	}
	return rpcpeer.Message[StreamBody]{Header: header, Body: NewStreamBody(t.buf[prefixLen+rpcpeer.HeaderLen : n])}, nil
}

// Close implements transport.Transport.
func (t *DatagramTransport) Close() error { return t.conn.Close() }

var _ Transport[StreamBody] = (*DatagramTransport)(nil)
