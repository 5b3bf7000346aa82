// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/rpcpeer"
)

// chunkedReadWriteCloser lets Read return data in arbitrarily small
// pieces, to exercise StreamTransport.Receive's io.ReadFull loops against
// a framing round trip fed in arbitrary chunks.
type chunkedReadWriteCloser struct {
	buf       *bytes.Buffer
	chunkSize int
}

func (c *chunkedReadWriteCloser) Read(p []byte) (int, error) {
	if c.chunkSize > 0 && len(p) > c.chunkSize {
		p = p[:c.chunkSize]
	}
	return c.buf.Read(p)
}
func (c *chunkedReadWriteCloser) Write(p []byte) (int, error) { return c.buf.Write(p) }
func (c *chunkedReadWriteCloser) Close() error                { return nil }

func TestStreamTransportFramingRoundTripArbitraryChunking(t *testing.T) {
	msgs := []rpcpeer.Message[StreamBody]{
		{Header: rpcpeer.Header{Type: rpcpeer.TypeRequest, RequestID: 21, ServiceID: 7}, Body: NewStreamBody([]byte("Hello World"))},
		{Header: rpcpeer.Header{Type: rpcpeer.TypeResponse, RequestID: 21, ServiceID: 0}, Body: NewStreamBody(nil)},
		{Header: rpcpeer.Header{Type: rpcpeer.TypeRequesterUpdate, RequestID: 1, ServiceID: 0}, Body: NewStreamBody([]byte("u"))},
	}

	for chunkSize := 1; chunkSize <= 7; chunkSize++ {
		buf := &bytes.Buffer{}
		writer := NewStreamTransport(&chunkedReadWriteCloser{buf: buf}, 0)
		for _, m := range msgs {
			require.NoError(t, writer.Send(context.Background(), m))
		}

		reader := NewStreamTransport(&chunkedReadWriteCloser{buf: buf, chunkSize: chunkSize}, 0)
		for _, want := range msgs {
			got, err := reader.Receive(context.Background())
			require.NoError(t, err)
			require.Equal(t, want.Header, got.Header)
			require.Equal(t, want.Body.Bytes(), got.Body.Bytes())
		}
	}
}

func TestStreamTransportZeroLengthBodyRoundTrips(t *testing.T) {
	buf := &bytes.Buffer{}
	tr := NewStreamTransport(&chunkedReadWriteCloser{buf: buf}, 0)
	msg := rpcpeer.Message[StreamBody]{Header: rpcpeer.Header{Type: rpcpeer.TypeStream, ServiceID: 9}, Body: NewStreamBody(nil)}
	require.NoError(t, tr.Send(context.Background(), msg))

	got, err := tr.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, msg.Header, got.Header)
	require.Equal(t, 0, len(got.Body.Bytes()))
}

func TestStreamTransportLength11IsMalformedFrame(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.Write([]byte{11, 0, 0, 0}) // length field 11 < HeaderLen
	tr := NewStreamTransport(&chunkedReadWriteCloser{buf: buf}, 0)

	_, err := tr.Receive(context.Background())
	var rerr *rpcpeer.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, rpcpeer.KindMalformedFrame, rerr.Kind())
}

func TestStreamTransportLength12TruncatedIsUnexpectedEnd(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.Write([]byte{12, 0, 0, 0}) // declares a valid 12-byte frame, then EOF
	tr := NewStreamTransport(&chunkedReadWriteCloser{buf: buf}, 0)

	_, err := tr.Receive(context.Background())
	var rerr *rpcpeer.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, rpcpeer.KindUnexpectedEnd, rerr.Kind())
}

func TestStreamTransportCleanEOFBeforeAnyFrame(t *testing.T) {
	buf := &bytes.Buffer{}
	tr := NewStreamTransport(&chunkedReadWriteCloser{buf: buf}, 0)

	_, err := tr.Receive(context.Background())
	require.True(t, errors.Is(err, io.EOF))
}

func TestStreamTransportMessageTooLarge(t *testing.T) {
	buf := &bytes.Buffer{}
	tr := NewStreamTransport(&chunkedReadWriteCloser{buf: buf}, 4)
	msg := rpcpeer.Message[StreamBody]{Header: rpcpeer.Header{Type: rpcpeer.TypeStream}, Body: NewStreamBody([]byte("toolong"))}

	err := tr.Send(context.Background(), msg)
	var rerr *rpcpeer.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, rpcpeer.KindMessageTooLarge, rerr.Kind())
}

func TestNewTransportPipeEchoesBetweenEnds(t *testing.T) {
	a, b := NewTransportPipe(0)
	defer a.Close()
	defer b.Close()

	msg := rpcpeer.Message[StreamBody]{Header: rpcpeer.Header{Type: rpcpeer.TypeRequest, RequestID: 21, ServiceID: 7}, Body: NewStreamBody([]byte("Hello World"))}
	go func() { _ = a.Send(context.Background(), msg) }()

	got, err := b.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, msg.Header, got.Header)
	require.Equal(t, msg.Body.Bytes(), got.Body.Bytes())
}
