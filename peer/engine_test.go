// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package peer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/rpcpeer"
	"code.hybscloud.com/rpcpeer/peer"
	"code.hybscloud.com/rpcpeer/transport"
)

func errBody(text string) transport.StreamBody {
	return transport.NewStreamBody([]byte(text))
}

func newPeerPair(t *testing.T) (*peer.PeerHandle[transport.StreamBody], *peer.PeerHandle[transport.StreamBody]) {
	t.Helper()
	a, b := transport.NewTransportPipe(0)
	client := peer.New[transport.StreamBody](a, errBody)
	server := peer.New[transport.StreamBody](b, errBody)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

// TestEchoRoundTrip exercises a single request/response exchange end to end.
func TestEchoRoundTrip(t *testing.T) {
	client, server := newPeerPair(t)
	c := ctx(t)

	go func() {
		item, rerr := server.Recv(c)
		require.Nil(t, rerr)
		require.NotNil(t, item.Request)
		require.Equal(t, int32(7), item.Request.ServiceID())

		body, rerr := item.Request.RecvUpdate(c)
		require.Nil(t, rerr)
		require.Equal(t, "Hello World", string(body.Bytes()))

		rerr = item.Request.SendResponse(c, 0, errBody("Hello World"))
		require.Nil(t, rerr)
	}()

	req, rerr := client.SendRequest(c, 7, errBody("placeholder"))
	require.Nil(t, rerr)
	require.Nil(t, req.SendUpdate(c, errBody("Hello World")))

	status, body, rerr := req.RecvResponse(c)
	require.Nil(t, rerr)
	require.Equal(t, int32(0), status)
	require.Equal(t, "Hello World", string(body.Bytes()))
}

// TestErrorResponse exercises a Response carrying a negative service_id as an application error.
func TestErrorResponse(t *testing.T) {
	client, server := newPeerPair(t)
	c := ctx(t)

	go func() {
		item, rerr := server.Recv(c)
		require.Nil(t, rerr)
		rerr = item.Request.SendResponse(c, -1, errBody("failed to process request"))
		require.Nil(t, rerr)
	}()

	req, rerr := client.SendRequest(c, 7, errBody("Hello World"))
	require.Nil(t, rerr)

	status, body, rerr := req.RecvResponse(c)
	require.NotNil(t, rerr)
	require.Equal(t, int32(-1), status)
	require.Equal(t, "failed to process request", string(body.Bytes()))
	require.Equal(t, rpcpeer.KindApplication, rerr.Kind())
}

// TestInterleavedUpdates exercises updates flowing in both directions before the terminal Response.
func TestInterleavedUpdates(t *testing.T) {
	client, server := newPeerPair(t)
	c := ctx(t)

	go func() {
		item, rerr := server.Recv(c)
		require.Nil(t, rerr)
		require.Nil(t, item.Request.SendUpdate(c, errBody("u1")))
		require.Nil(t, item.Request.SendUpdate(c, errBody("u2")))
		require.Nil(t, item.Request.SendResponse(c, 0, errBody("done")))
	}()

	req, rerr := client.SendRequest(c, 1, errBody("start"))
	require.Nil(t, rerr)
	require.Nil(t, req.SendUpdate(c, errBody("cu1")))
	require.Nil(t, req.SendUpdate(c, errBody("cu2")))

	body, isResponse, rerr := req.RecvUpdate(c)
	require.Nil(t, rerr)
	require.False(t, isResponse)
	require.Equal(t, "u1", string(body.Bytes()))

	body, isResponse, rerr = req.RecvUpdate(c)
	require.Nil(t, rerr)
	require.False(t, isResponse)
	require.Equal(t, "u2", string(body.Bytes()))

	_, isResponse, rerr = req.RecvUpdate(c)
	require.Nil(t, rerr)
	require.True(t, isResponse)

	status, respBody, rerr := req.RecvResponse(c)
	require.Nil(t, rerr)
	require.Equal(t, int32(0), status)
	require.Equal(t, "done", string(respBody.Bytes()))
}

// TestConcurrentRequestsOutOfOrderCompletion checks each handle only ever observes its own Response
// when two requests complete in reverse order.
func TestConcurrentRequestsOutOfOrderCompletion(t *testing.T) {
	client, server := newPeerPair(t)
	c := ctx(t)

	go func() {
		var first, second *peer.ReceivedRequestHandle[transport.StreamBody]
		for i := 0; i < 2; i++ {
			item, rerr := server.Recv(c)
			require.Nil(t, rerr)
			if first == nil {
				first = item.Request
			} else {
				second = item.Request
			}
		}
		require.Nil(t, second.SendResponse(c, 0, errBody("second")))
		require.Nil(t, first.SendResponse(c, 0, errBody("first")))
	}()

	req1, rerr := client.SendRequest(c, 1, errBody("one"))
	require.Nil(t, rerr)
	req2, rerr := client.SendRequest(c, 1, errBody("two"))
	require.Nil(t, rerr)
	require.NotEqual(t, req1.ID(), req2.ID())

	_, body1, rerr := req1.RecvResponse(c)
	require.Nil(t, rerr)
	require.Equal(t, "first", string(body1.Bytes()))

	_, body2, rerr := req2.RecvResponse(c)
	require.Nil(t, rerr)
	require.Equal(t, "second", string(body2.Bytes()))
}

// TestReceivedRequestCancellationSynthesizesAbortedResponse covers
// a ReceivedRequestHandle dropped without sending a Response.
func TestReceivedRequestCancellationSynthesizesAbortedResponse(t *testing.T) {
	client, server := newPeerPair(t)
	c := ctx(t)

	go func() {
		item, rerr := server.Recv(c)
		require.Nil(t, rerr)
		require.NoError(t, item.Request.Close()) // drop without answering
	}()

	req, rerr := client.SendRequest(c, 1, errBody("seed"))
	require.Nil(t, rerr)

	status, _, rerr := req.RecvResponse(c)
	require.NotNil(t, rerr)
	require.Equal(t, rpcpeer.AbortedServiceID, status)
	require.Equal(t, rpcpeer.KindAborted, rerr.Kind())
}

// TestPeerCloseFanOut checks that every open handle observes PeerClosed once the transport fails.
func TestPeerCloseFanOut(t *testing.T) {
	client, server := newPeerPair(t)
	c := ctx(t)

	// Three sent requests and (via the server accepting them) two
	// received requests stay open; then the transport is severed.
	req1, rerr := client.SendRequest(c, 1, errBody("a"))
	require.Nil(t, rerr)
	req2, rerr := client.SendRequest(c, 1, errBody("b"))
	require.Nil(t, rerr)
	req3, rerr := client.SendRequest(c, 1, errBody("c"))
	require.Nil(t, rerr)

	var received []*peer.ReceivedRequestHandle[transport.StreamBody]
	for i := 0; i < 2; i++ {
		item, rerr := server.Recv(c)
		require.Nil(t, rerr)
		received = append(received, item.Request)
	}

	require.NoError(t, server.Close())

	for _, req := range []*peer.SentRequestHandle[transport.StreamBody]{req1, req2, req3} {
		_, _, rerr := req.RecvResponse(c)
		require.NotNil(t, rerr)
		require.Equal(t, rpcpeer.KindPeerClosed, rerr.Kind())
	}
	for _, rh := range received {
		_, rerr := rh.RecvUpdate(c)
		require.NotNil(t, rerr)
		require.Equal(t, rpcpeer.KindPeerClosed, rerr.Kind())
	}

	rerr = client.WriteHandle.SendStream(c, 1, errBody("x"))
	require.NotNil(t, rerr)
	require.Equal(t, rpcpeer.KindPeerClosed, rerr.Kind())
}

// TestDuplicateReceivedID drives a byzantine peer
// sends two Requests with the same id before the first is answered.
// Driven from the raw wire (bypassing the well-behaved engine's own
// allocator, which never reuses a live id on its own) against a real
// server engine on the other end.
func TestDuplicateReceivedID(t *testing.T) {
	rawEnd, serverEnd := transport.NewTransportPipe(0)
	defer rawEnd.Close()
	server := peer.New[transport.StreamBody](serverEnd, errBody)
	defer server.Close()
	c := ctx(t)

	send := func(msg rpcpeer.Message[transport.StreamBody]) {
		require.NoError(t, rawEnd.Send(c, msg))
	}
	send(rpcpeer.Message[transport.StreamBody]{
		Header: rpcpeer.Header{Type: rpcpeer.TypeRequest, RequestID: 5, ServiceID: 1},
		Body:   errBody("first"),
	})
	send(rpcpeer.Message[transport.StreamBody]{
		Header: rpcpeer.Header{Type: rpcpeer.TypeRequest, RequestID: 5, ServiceID: 1},
		Body:   errBody("second"),
	})

	item, rerr := server.Recv(c)
	require.Nil(t, rerr)
	require.NotNil(t, item.Request)
	require.Equal(t, uint32(5), item.Request.ID())
	defer item.Request.Close()

	// The engine answers the duplicate directly on the wire without
	// surfacing a second Incoming; the first entry remains open.
	reject, err := rawEnd.Receive(c)
	require.NoError(t, err)
	require.Equal(t, rpcpeer.TypeResponse, reject.Type)
	require.Equal(t, uint32(5), reject.RequestID)
	require.NotEqual(t, int32(0), reject.ServiceID)

	// The first request is still answerable.
	require.Nil(t, item.Request.SendResponse(c, 0, errBody("ok")))
}

// TestStreamNotification checks a Stream message surfaces as a standalone notification.
func TestStreamNotification(t *testing.T) {
	client, server := newPeerPair(t)
	c := ctx(t)

	require.Nil(t, client.WriteHandle.SendStream(c, 9, errBody("notice")))

	item, rerr := server.Recv(c)
	require.Nil(t, rerr)
	require.Nil(t, item.Request)
	require.NotNil(t, item.Stream)
	require.Equal(t, int32(9), item.Stream.ServiceID)
	require.Equal(t, "notice", string(item.Stream.Body.Bytes()))
}

// TestSentRequestHandleCloseAbandonsLocallyWithoutNotifyingPeer covers
// Cancellation for the Sent side: no message is sent, the
// peer's received-request handle instead observes PeerClosed only when
// the whole connection later tears down, not a synthesized response.
func TestSentRequestHandleCloseAbandonsLocallyWithoutNotifyingPeer(t *testing.T) {
	client, server := newPeerPair(t)
	c := ctx(t)

	req, rerr := client.SendRequest(c, 1, errBody("x"))
	require.Nil(t, rerr)

	item, rerr := server.Recv(c)
	require.Nil(t, rerr)

	require.NoError(t, req.Close())

	// The peer's received handle sees nothing until it sends or the
	// connection closes; verify it can still answer normally.
	require.Nil(t, item.Request.SendResponse(c, 0, errBody("too late")))
}
