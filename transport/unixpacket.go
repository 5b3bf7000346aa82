// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"net"

	"golang.org/x/sys/unix"

	"code.hybscloud.com/rpcpeer"
)

// maxAncillaryFDs bounds how many file descriptors a single datagram
// may carry; large enough for any realistic request while keeping the
// OOB buffer allocation fixed-size.
const maxAncillaryFDs = 32

// UnixPacketTransport is a Transport[UnixBody] over a SOCK_SEQPACKET or
// SOCK_DGRAM Unix-domain socket, carrying file descriptors via SCM_RIGHTS
// ancillary data using golang.org/x/sys/unix.UnixRights and the stdlib
// net.UnixConn's ReadMsgUnix/WriteMsgUnix.
type UnixPacketTransport struct {
	conn       *net.UnixConn
	maxBodyLen int
	protocol   Protocol
	buf        []byte
	oob        []byte
}

// NewUnixPacketTransport wraps a connected *net.UnixConn dialed or
// accepted over "unixpacket" or "unixgram" (SeqPacket).
func NewUnixPacketTransport(conn *net.UnixConn, maxBodyLen int) *UnixPacketTransport {
	bufLen := maxBodyLen
	if bufLen <= 0 {
		bufLen = 64 * 1024
	}
	return &UnixPacketTransport{
		conn:       conn,
		maxBodyLen: maxBodyLen,
		protocol:   SeqPacket,
		buf:        make([]byte, rpcpeer.HeaderLen+bufLen),
		oob:        make([]byte, unix.CmsgSpace(maxAncillaryFDs*4)),
	}
}

// Send implements transport.Transport.
func (t *UnixPacketTransport) Send(ctx context.Context, msg rpcpeer.Message[UnixBody]) error {
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

	var oob []byte
	if fds := msg.Body.Ancillary(); len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}

	return withDeadline(ctx, t.conn, func() error {
		_, _, err := t.conn.WriteMsgUnix(frame, oob, nil)
		if err != nil {
			return rpcpeer.NewError(rpcpeer.KindIO, err)
		}
		return nil
	})
}

// Receive implements transport.Transport.
func (t *UnixPacketTransport) Receive(ctx context.Context) (rpcpeer.Message[UnixBody], error) {
	var zero rpcpeer.Message[UnixBody]

	var n, oobn int
	err := withDeadline(ctx, t.conn, func() error {
		var rerr error
		n, oobn, _, _, rerr = t.conn.ReadMsgUnix(t.buf, t.oob)
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

	var fds []int
	if oobn > 0 {
		cmsgs, perr := unix.ParseSocketControlMessage(t.oob[:oobn])
		if perr != nil {
			return zero, rpcpeer.NewError(rpcpeer.KindMalformedFrame, perr)
		}
		for _, cmsg := range cmsgs {
			parsed, perr := unix.ParseUnixRights(&cmsg)
			if perr != nil {
				continue
			}
			fds = append(fds, parsed...)
		}
	}

	body := NewUnixBody(t.buf[prefixLen+rpcpeer.HeaderLen:n], fds)
	return rpcpeer.Message[UnixBody]{Header: header, Body: body}, nil
}

// Close implements transport.Transport.
func (t *UnixPacketTransport) Close() error { return t.conn.Close() }

var _ Transport[UnixBody] = (*UnixPacketTransport)(nil)
