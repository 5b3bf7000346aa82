// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package peer

import (
	"context"
	"sync"

	"code.hybscloud.com/rpcpeer"
	"code.hybscloud.com/rpcpeer/tracker"
	"code.hybscloud.com/rpcpeer/transport"
)

// New constructs a peer engine over t and returns a combined
// PeerHandle. Split the handle to hand the read and write halves to
// separate tasks.
func New[B rpcpeer.Body](t transport.Transport[B], errBody func(string) B, opts ...rpcpeer.Option) *PeerHandle[B] {
	cfg := rpcpeer.NewConfig(opts...)
	e := newEngine[B](t, cfg, errBody)
	e.refs.Store(2) // one read capability + one write capability
	return &PeerHandle[B]{
		ReadHandle:  &ReadHandle[B]{engine: e},
		WriteHandle: &WriteHandle[B]{engine: e},
	}
}

// PeerHandle is the capability-bearing reference to a connection's
// engine, combining read and write access.
type PeerHandle[B rpcpeer.Body] struct {
	*ReadHandle[B]
	*WriteHandle[B]
}

// Split returns the independently ownable read and write halves. The
// write half may be cloned further; the read half is single-consumer.
func (p *PeerHandle[B]) Split() (*ReadHandle[B], *WriteHandle[B]) {
	return p.ReadHandle, p.WriteHandle
}

// Close releases both halves, triggering shutdown once nothing else
// references the engine.
func (p *PeerHandle[B]) Close() error {
	rerr := p.ReadHandle.Close()
	werr := p.WriteHandle.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

// DroppedMessages reports the engine's diagnostic counter of inbound
// messages that referenced an unknown request id.
func (p *PeerHandle[B]) DroppedMessages() int64 { return p.ReadHandle.engine.DroppedMessages() }

// ReadHandle consumes the peer-wide incoming queue: Stream
// notifications and newly accepted Requests.
type ReadHandle[B rpcpeer.Body] struct {
	engine    *engine[B]
	closeOnce sync.Once
}

// Recv waits for the next Stream notification or accepted Request.
func (r *ReadHandle[B]) Recv(ctx context.Context) (Incoming[B], *rpcpeer.Error) {
	select {
	case item := <-r.engine.incoming:
		return item, nil
	case <-r.engine.done:
		select {
		case item := <-r.engine.incoming:
			return item, nil
		default:
		}
		return Incoming[B]{}, r.engine.closeErrOrDefault()
	case <-ctx.Done():
		return Incoming[B]{}, rpcpeer.NewError(rpcpeer.KindIO, ctx.Err())
	}
}

// Close releases this handle's reference to the engine.
func (r *ReadHandle[B]) Close() error {
	r.closeOnce.Do(r.engine.releaseRef)
	return nil
}

// WriteHandle submits commands to the engine: new requests, stream
// notifications, and (via Clone) may be shared across tasks.
type WriteHandle[B rpcpeer.Body] struct {
	engine    *engine[B]
	closeOnce sync.Once
}

// Clone returns an independent WriteHandle sharing the same engine,
// incrementing the handle refcount so the engine does not shut down
// until every clone is also closed.
func (w *WriteHandle[B]) Clone() *WriteHandle[B] {
	w.engine.refs.Add(1)
	return &WriteHandle[B]{engine: w.engine}
}

// SendRequest issues a new Request and returns a handle for its
// lifecycle.
func (w *WriteHandle[B]) SendRequest(ctx context.Context, serviceID int32, body B) (*SentRequestHandle[B], *rpcpeer.Error) {
	cmd := command[B]{kind: cmdSendRequest, serviceID: serviceID, body: body, sentResult: make(chan sentResult[B], 1)}
	entry, err := w.engine.submitSendRequest(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return &SentRequestHandle[B]{engine: w.engine, entry: entry}, nil
}

// SendStream emits a standalone notification, not associated with any
// request.
func (w *WriteHandle[B]) SendStream(ctx context.Context, serviceID int32, body B) *rpcpeer.Error {
	cmd := command[B]{kind: cmdSendStream, serviceID: serviceID, body: body, errResult: make(chan *rpcpeer.Error, 1)}
	return w.engine.submit(ctx, cmd)
}

// Shutdown requests engine teardown regardless of remaining handle
// references.
func (w *WriteHandle[B]) Shutdown(ctx context.Context) *rpcpeer.Error {
	cmd := command[B]{kind: cmdShutdown, errResult: make(chan *rpcpeer.Error, 1)}
	return w.engine.submit(ctx, cmd)
}

// Close releases this handle's reference to the engine.
func (w *WriteHandle[B]) Close() error {
	w.closeOnce.Do(w.engine.releaseRef)
	return nil
}

// recvNext is the shared blocking-receive primitive used by both
// SentRequestHandle and ReceivedRequestHandle: it drains an entry's
// inbox, falling back to the entry's terminal error once Done fires and
// the inbox has been fully drained.
func recvNext[B rpcpeer.Body](ctx context.Context, e *tracker.Entry[B]) (rpcpeer.Message[B], *rpcpeer.Error) {
	select {
	case msg := <-e.Inbox():
		return msg, nil
	case <-e.Done():
		select {
		case msg := <-e.Inbox():
			return msg, nil
		default:
		}
		if cerr := e.CloseErr(); cerr != nil {
			return rpcpeer.Message[B]{}, cerr
		}
		return rpcpeer.Message[B]{}, rpcpeer.NewError(rpcpeer.KindPeerClosed, nil)
	case <-ctx.Done():
		return rpcpeer.Message[B]{}, rpcpeer.NewError(rpcpeer.KindIO, ctx.Err())
	}
}

// SentRequestHandle tracks one request this peer initiated.
type SentRequestHandle[B rpcpeer.Body] struct {
	engine          *engine[B]
	entry           *tracker.Entry[B]
	pendingResponse *rpcpeer.Message[B]
	closeOnce       sync.Once
}

// ID returns the request id the engine allocated for this request.
func (h *SentRequestHandle[B]) ID() uint32 { return h.entry.ID }

// RecvUpdate yields the next non-terminal inbound message. isResponse
// is true when the next message was in fact the terminal Response: it
// is buffered internally and returned by the following RecvResponse
// call rather than discarded.
func (h *SentRequestHandle[B]) RecvUpdate(ctx context.Context) (body B, isResponse bool, err *rpcpeer.Error) {
	msg, err := recvNext(ctx, h.entry)
	if err != nil {
		return body, false, err
	}
	if msg.Type == rpcpeer.TypeResponse {
		h.pendingResponse = &msg
		return body, true, nil
	}
	return msg.Body, false, nil
}

// RecvResponse waits for (and returns) the terminal Response, draining
// any updates the caller has not yet consumed via RecvUpdate. status is
// the Response's service_id: 0 for success, AbortedServiceID for a
// locally-synthesized cancellation, any other negative value for an
// application-defined error.
func (h *SentRequestHandle[B]) RecvResponse(ctx context.Context) (status int32, body B, err *rpcpeer.Error) {
	var msg rpcpeer.Message[B]
	if h.pendingResponse != nil {
		msg = *h.pendingResponse
		h.pendingResponse = nil
	} else {
		for {
			m, rerr := recvNext(ctx, h.entry)
			if rerr != nil {
				return 0, body, rerr
			}
			if m.Type == rpcpeer.TypeResponse {
				msg = m
				break
			}
		}
	}

	if msg.ServiceID == 0 {
		return 0, msg.Body, nil
	}
	text, _ := msg.Body.ErrorText()
	if msg.ServiceID == rpcpeer.AbortedServiceID {
		return msg.ServiceID, msg.Body, rpcpeer.Errorf(rpcpeer.KindAborted, "%s", text)
	}
	return msg.ServiceID, msg.Body, rpcpeer.Errorf(rpcpeer.KindApplication, "%s", text)
}

// SendUpdate emits a RequesterUpdate on this request.
func (h *SentRequestHandle[B]) SendUpdate(ctx context.Context, body B) *rpcpeer.Error {
	cmd := command[B]{kind: cmdSendUpdate, id: h.entry.ID, origin: rpcpeer.OriginSent, body: body, errResult: make(chan *rpcpeer.Error, 1)}
	return h.engine.submit(ctx, cmd)
}

// WriteHandle returns a clonable token restricted to sending updates
// for this request, usable concurrently with reading.
func (h *SentRequestHandle[B]) WriteHandle() *RequestWriteHandle[B] {
	return &RequestWriteHandle[B]{engine: h.engine, id: h.entry.ID, origin: rpcpeer.OriginSent}
}

// Close abandons the request: the engine retires the entry locally
// without notifying the peer, since the protocol has no cancel message.
func (h *SentRequestHandle[B]) Close() error {
	h.closeOnce.Do(func() {
		cmd := command[B]{kind: cmdCloseSent, id: h.entry.ID, errResult: make(chan *rpcpeer.Error, 1)}
		_ = h.engine.submit(context.Background(), cmd)
	})
	return nil
}

// ReceivedRequestHandle tracks one request the peer initiated against
// us.
type ReceivedRequestHandle[B rpcpeer.Body] struct {
	engine    *engine[B]
	entry     *tracker.Entry[B]
	answered  bool
	closeOnce sync.Once
}

func newReceivedRequestHandle[B rpcpeer.Body](e *engine[B], entry *tracker.Entry[B]) *ReceivedRequestHandle[B] {
	return &ReceivedRequestHandle[B]{engine: e, entry: entry}
}

// ID returns the peer-chosen request id.
func (h *ReceivedRequestHandle[B]) ID() uint32 { return h.entry.ID }

// ServiceID returns the service the original Request targeted.
func (h *ReceivedRequestHandle[B]) ServiceID() int32 { return h.entry.ServiceID }

// RecvUpdate yields the next RequesterUpdate sent by the peer; no
// Response ever arrives on this handle.
func (h *ReceivedRequestHandle[B]) RecvUpdate(ctx context.Context) (body B, err *rpcpeer.Error) {
	msg, err := recvNext(ctx, h.entry)
	if err != nil {
		return body, err
	}
	return msg.Body, nil
}

// SendUpdate emits a ResponderUpdate on this request.
func (h *ReceivedRequestHandle[B]) SendUpdate(ctx context.Context, body B) *rpcpeer.Error {
	cmd := command[B]{kind: cmdSendUpdate, id: h.entry.ID, origin: rpcpeer.OriginReceived, body: body, errResult: make(chan *rpcpeer.Error, 1)}
	return h.engine.submit(ctx, cmd)
}

// SendResponse answers the request, transitioning it to Answered and
// retiring it.
func (h *ReceivedRequestHandle[B]) SendResponse(ctx context.Context, serviceOrError int32, body B) *rpcpeer.Error {
	h.answered = true
	cmd := command[B]{kind: cmdSendResponse, id: h.entry.ID, serviceID: serviceOrError, body: body, errResult: make(chan *rpcpeer.Error, 1)}
	return h.engine.submit(ctx, cmd)
}

// WriteHandle returns a clonable token restricted to sending updates
// for this request.
func (h *ReceivedRequestHandle[B]) WriteHandle() *RequestWriteHandle[B] {
	return &RequestWriteHandle[B]{engine: h.engine, id: h.entry.ID, origin: rpcpeer.OriginReceived}
}

// Close drops the handle. If no Response was sent, the engine
// synthesizes one with AbortedServiceID so the peer's Sent-side state
// is not stranded.
func (h *ReceivedRequestHandle[B]) Close() error {
	h.closeOnce.Do(func() {
		if h.answered {
			return
		}
		cmd := command[B]{kind: cmdCloseReceived, id: h.entry.ID, errResult: make(chan *rpcpeer.Error, 1)}
		_ = h.engine.submit(context.Background(), cmd)
	})
	return nil
}

// RequestWriteHandle is a clonable token that can only send updates for
// one request, independent of the owning SentRequestHandle/
// ReceivedRequestHandle so it may be used concurrently from another
// task.
type RequestWriteHandle[B rpcpeer.Body] struct {
	engine *engine[B]
	id     uint32
	origin rpcpeer.Origin
}

// Clone returns an independent token for the same request.
func (w *RequestWriteHandle[B]) Clone() *RequestWriteHandle[B] {
	return &RequestWriteHandle[B]{engine: w.engine, id: w.id, origin: w.origin}
}

// SendUpdate emits an update on the token's request, RequesterUpdate or
// ResponderUpdate depending on which side created the token.
func (w *RequestWriteHandle[B]) SendUpdate(ctx context.Context, body B) *rpcpeer.Error {
	cmd := command[B]{kind: cmdSendUpdate, id: w.id, origin: w.origin, body: body, errResult: make(chan *rpcpeer.Error, 1)}
	return w.engine.submit(ctx, cmd)
}
