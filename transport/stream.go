// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"io"

	"code.hybscloud.com/rpcpeer"
)

// StreamTransport is a Transport[StreamBody] over any io.ReadWriteCloser
// that does not preserve message boundaries (TCP, Unix-stream sockets,
// net.Pipe). Every message is framed with a 4-byte little-endian
// length prefix followed by the fixed header and body, read with
// io.ReadFull into reused scratch buffers.
type StreamTransport struct {
	conn       io.ReadWriteCloser
	maxBodyLen int
	protocol   Protocol

	// reusable scratch buffers; the lifetime of a StreamTransport is one
	// peer engine, so these never need to be returned to a pool.
	hdrBuf  [lengthPrefixLen + rpcpeer.HeaderLen]byte
	readBuf []byte
}

// NewStreamTransport wraps conn as a Transport[StreamBody] for a
// medium that does not preserve message boundaries (BinaryStream).
// maxBodyLen of zero disables this transport's own size check; the
// owning peer engine separately enforces its own Config.MaxBodyLen on
// every outbound and inbound body regardless of this setting.
func NewStreamTransport(conn io.ReadWriteCloser, maxBodyLen int) *StreamTransport {
	return &StreamTransport{conn: conn, maxBodyLen: maxBodyLen, protocol: BinaryStream}
}

// Send implements transport.Transport.
func (t *StreamTransport) Send(ctx context.Context, msg rpcpeer.Message[StreamBody]) error {
	body := msg.Body.Bytes()
	if len(body) > MaxPayloadLen {
		return rpcpeer.NewError(rpcpeer.KindMessageTooLarge, nil)
	}
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
func (t *StreamTransport) Receive(ctx context.Context) (rpcpeer.Message[StreamBody], error) {
	var zero rpcpeer.Message[StreamBody]

	prefixLen := 0
	if !t.protocol.preservesBoundary() {
		prefixLen = lengthPrefixLen
	}

	var frameLen uint32
	err := withDeadline(ctx, t.conn, func() error {
		if _, err := io.ReadFull(t.conn, t.hdrBuf[:prefixLen]); err != nil {
			if err == io.EOF {
				return io.EOF
			}
			return rpcpeer.NewError(rpcpeer.KindUnexpectedEnd, err)
		}
		frameLen = decodeLengthPrefix(t.hdrBuf[:prefixLen])
		return nil
	})
	if err != nil {
		return zero, err
	}

	if frameLen < rpcpeer.HeaderLen {
		return zero, rpcpeer.NewError(rpcpeer.KindMalformedFrame, nil)
	}
	bodyLen := int(frameLen) - rpcpeer.HeaderLen
	if t.maxBodyLen > 0 && bodyLen > t.maxBodyLen {
		return zero, rpcpeer.NewError(rpcpeer.KindMessageTooLarge, nil)
	}

	err = withDeadline(ctx, t.conn, func() error {
		if _, err := io.ReadFull(t.conn, t.hdrBuf[prefixLen:prefixLen+rpcpeer.HeaderLen]); err != nil {
			return rpcpeer.NewError(rpcpeer.KindUnexpectedEnd, err)
		}
		return nil
	})
	if err != nil {
		return zero, err
	}
	header, err := decodeHeader(t.hdrBuf[prefixLen : prefixLen+rpcpeer.HeaderLen])
	if err != nil {
		return zero, err
	}

	if cap(t.readBuf) < bodyLen {
		t.readBuf = make([]byte, bodyLen)
	}
	payload := t.readBuf[:bodyLen]
	if bodyLen > 0 {
		err = withDeadline(ctx, t.conn, func() error {
			if _, err := io.ReadFull(t.conn, payload); err != nil {
				return rpcpeer.NewError(rpcpeer.KindUnexpectedEnd, err)
			}
			return nil
		})
		if err != nil {
			return zero, err
		}
	}

	return rpcpeer.Message[StreamBody]{Header: header, Body: NewStreamBody(payload)}, nil
}

// Close implements transport.Transport.
func (t *StreamTransport) Close() error {
	return t.conn.Close()
}

var _ Transport[StreamBody] = (*StreamTransport)(nil)
