// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package peer implements the per-connection peer engine and the
// public handles that drive it.
//
// A read loop and a command (write) loop run as independent
// goroutines, coordinating over a done channel and per-command result
// channels, mirroring a session/stream multiplexer's recv-loop /
// send-loop split: the read loop owns all inbound I/O and tracker
// reads, the command loop owns all outbound I/O, and the two never
// touch the transport from the other's side.
package peer

import (
	"context"
	"sync"
	"sync/atomic"

	"code.hybscloud.com/rpcpeer"
	"code.hybscloud.com/rpcpeer/rpclog"
	"code.hybscloud.com/rpcpeer/tracker"
	"code.hybscloud.com/rpcpeer/transport"
)

// Incoming is one item delivered to a ReadHandle: either a standalone
// Stream notification or a newly accepted Request, never both.
type Incoming[B rpcpeer.Body] struct {
	Stream  *rpcpeer.Message[B]
	Request *ReceivedRequestHandle[B]
}

// errorBodyFunc builds a Body carrying only a human-readable
// description, used for the engine's own synthesized messages
// (duplicate-id rejections, aborted responses).
type errorBodyFunc[B rpcpeer.Body] func(text string) B

// engine owns the transport and tracker for one connection and runs
// the read loop and command loop that drive it.
type engine[B rpcpeer.Body] struct {
	transport transport.Transport[B]
	tracker   *tracker.Tracker[B]
	cfg       rpcpeer.Config
	errBody   errorBodyFunc[B]

	commands chan command[B]
	incoming chan Incoming[B]

	done      chan struct{}
	closeOnce sync.Once
	closeErr  atomic.Pointer[rpcpeer.Error]

	refs            atomic.Int64
	droppedMessages atomic.Int64

	log rpclog.Logger
}

func newEngine[B rpcpeer.Body](t transport.Transport[B], cfg rpcpeer.Config, errBody errorBodyFunc[B]) *engine[B] {
	e := &engine[B]{
		transport: t,
		cfg:       cfg,
		errBody:   errBody,
		commands:  make(chan command[B], cfg.CommandQueueCapacity),
		incoming:  make(chan Incoming[B], cfg.InboxCapacity),
		done:      make(chan struct{}),
		log:       rpclog.Std(),
	}
	e.tracker = tracker.New[B](cfg.InboxCapacity, cfg.Backpressure, e.done)
	go e.readLoop()
	go e.commandLoop()
	return e
}

// DroppedMessages reports how many inbound messages were silently
// dropped for referring to an unknown request id, exposed as a
// diagnostic counter rather than per-message logging.
func (e *engine[B]) DroppedMessages() int64 { return e.droppedMessages.Load() }

func (e *engine[B]) closeErrOrDefault() *rpcpeer.Error {
	if v := e.closeErr.Load(); v != nil {
		return v
	}
	return rpcpeer.NewError(rpcpeer.KindPeerClosed, nil)
}

// bodyTooLarge reports whether n exceeds the peer-level Config.MaxBodyLen.
// A non-positive MaxBodyLen disables the check. This is enforced here,
// independent of whatever size limit (if any) the concrete transport
// was constructed with, so the knob has effect regardless of transport.
func (e *engine[B]) bodyTooLarge(n int) bool {
	return e.cfg.MaxBodyLen > 0 && n > e.cfg.MaxBodyLen
}

// shutdown tears the engine down exactly once: closes the transport,
// retires every open tracker entry with cause, and wakes every handle
// blocked on e.done.
func (e *engine[B]) shutdown(cause *rpcpeer.Error) {
	e.closeOnce.Do(func() {
		if cause == nil {
			cause = rpcpeer.NewError(rpcpeer.KindPeerClosed, nil)
		} else if cause.Kind() != rpcpeer.KindPeerClosed {
			cause = rpcpeer.NewError(rpcpeer.KindPeerClosed, cause)
		}
		e.closeErr.Store(cause)
		close(e.done)
		_ = e.transport.Close()
		e.tracker.RetireAll(cause)
		e.log.WithError(cause).Warn("peer engine shutting down")
	})
}

// readLoop is the single owner of transport.Receive and of the
// tracker's read-side operations (register_received, dispatch).
func (e *engine[B]) readLoop() {
	ctx := context.Background()
	for {
		msg, err := e.transport.Receive(ctx)
		if err != nil {
			e.shutdown(rpcpeer.WrapIO(err))
			return
		}
		if e.bodyTooLarge(msg.Body.Len()) {
			e.shutdown(rpcpeer.NewError(rpcpeer.KindMessageTooLarge, nil))
			return
		}

		switch msg.Type {
		case rpcpeer.TypeStream:
			if !e.deliverIncoming(Incoming[B]{Stream: &msg}) {
				return
			}

		case rpcpeer.TypeRequest:
			entry, rerr := e.tracker.RegisterReceived(msg.RequestID, msg.ServiceID)
			if rerr != nil {
				e.rejectDuplicate(msg.RequestID, rerr)
				continue
			}
			rh := newReceivedRequestHandle(e, entry)
			if !e.deliverIncoming(Incoming[B]{Request: rh}) {
				return
			}

		case rpcpeer.TypeResponse:
			if e.tracker.Dispatch(msg.RequestID, rpcpeer.OriginSent, msg) == tracker.NoSuchRequest {
				e.droppedMessages.Add(1)
			}

		case rpcpeer.TypeRequesterUpdate:
			if e.tracker.Dispatch(msg.RequestID, rpcpeer.OriginReceived, msg) == tracker.NoSuchRequest {
				e.droppedMessages.Add(1)
			}

		case rpcpeer.TypeResponderUpdate:
			if e.tracker.Dispatch(msg.RequestID, rpcpeer.OriginSent, msg) == tracker.NoSuchRequest {
				e.droppedMessages.Add(1)
			}
		}
	}
}

func (e *engine[B]) deliverIncoming(item Incoming[B]) bool {
	select {
	case e.incoming <- item:
		return true
	case <-e.done:
		return false
	}
}

// rejectDuplicate answers a duplicate Received id with an error
// Response: the request's own flow only, not fatal to the whole peer.
// The write itself is handed to the command loop (cmdRejectDuplicate)
// rather than issued directly here, since the command loop is the
// transport's sole writer; writing from the read loop too would let the
// two loops interleave frames on the wire.
func (e *engine[B]) rejectDuplicate(requestID uint32, rerr *rpcpeer.Error) {
	rpclog.ForRequest(requestID, rpcpeer.OriginReceived.String()).
		WithField("kind", rerr.Kind().String()).
		Warn("rejecting duplicate request id")
	cmd := command[B]{kind: cmdRejectDuplicate, id: requestID, serviceID: duplicateIDServiceCode, body: e.errBody(rerr.Error())}
	select {
	case e.commands <- cmd:
	case <-e.done:
	}
}

// duplicateIDServiceCode is the reserved negative status used for the
// engine's own duplicate-request-id rejection response.
const duplicateIDServiceCode int32 = -2

// commandLoop is the single owner of transport.Send: it serializes
// every outbound write so frames are never interleaved on the wire.
func (e *engine[B]) commandLoop() {
	for {
		select {
		case cmd := <-e.commands:
			if cmd.kind == cmdShutdown {
				e.shutdown(nil)
				if cmd.errResult != nil {
					cmd.errResult <- nil
				}
				return
			}
			e.handleCommand(cmd)
		case <-e.done:
			return
		}
	}
}

func (e *engine[B]) handleCommand(cmd command[B]) {
	switch cmd.kind {
	case cmdSendRequest:
		e.handleSendRequest(cmd)
	case cmdSendResponse:
		e.handleSendResponse(cmd)
	case cmdSendUpdate:
		e.handleSendUpdate(cmd)
	case cmdSendStream:
		e.handleSendStream(cmd)
	case cmdCloseSent:
		e.tracker.Retire(cmd.id, rpcpeer.OriginSent, nil)
		if cmd.errResult != nil {
			cmd.errResult <- nil
		}
	case cmdCloseReceived:
		e.handleCloseReceived(cmd)
	case cmdRejectDuplicate:
		e.handleRejectDuplicate(cmd)
	}
}

// handleRejectDuplicate sends the duplicate-id rejection Response
// built by rejectDuplicate. Unlike handleSendResponse, it must not
// retire any tracker entry: the rejected occurrence was never
// registered, and an entry with the same id legitimately remains open.
func (e *engine[B]) handleRejectDuplicate(cmd command[B]) {
	msg := rpcpeer.Message[B]{
		Header: rpcpeer.Header{Type: rpcpeer.TypeResponse, RequestID: cmd.id, ServiceID: cmd.serviceID},
		Body:   cmd.body,
	}
	if err := e.transport.Send(context.Background(), msg); err != nil {
		e.shutdown(rpcpeer.WrapIO(err))
	}
}

func (e *engine[B]) handleSendRequest(cmd command[B]) {
	if e.bodyTooLarge(cmd.body.Len()) {
		cmd.sentResult <- sentResult[B]{err: rpcpeer.NewError(rpcpeer.KindMessageTooLarge, nil)}
		return
	}
	entry, rerr := e.tracker.RegisterSent(cmd.serviceID)
	if rerr != nil {
		cmd.sentResult <- sentResult[B]{err: rerr}
		return
	}
	msg := rpcpeer.Message[B]{
		Header: rpcpeer.Header{Type: rpcpeer.TypeRequest, RequestID: entry.ID, ServiceID: cmd.serviceID},
		Body:   cmd.body,
	}
	if err := e.transport.Send(context.Background(), msg); err != nil {
		wrapped := rpcpeer.WrapIO(err)
		e.tracker.Retire(entry.ID, rpcpeer.OriginSent, wrapped)
		cmd.sentResult <- sentResult[B]{err: wrapped}
		e.shutdown(wrapped)
		return
	}
	cmd.sentResult <- sentResult[B]{entry: entry}
}

func (e *engine[B]) handleSendResponse(cmd command[B]) {
	if e.bodyTooLarge(cmd.body.Len()) {
		cmd.errResult <- rpcpeer.NewError(rpcpeer.KindMessageTooLarge, nil)
		return
	}
	msg := rpcpeer.Message[B]{
		Header: rpcpeer.Header{Type: rpcpeer.TypeResponse, RequestID: cmd.id, ServiceID: cmd.serviceID},
		Body:   cmd.body,
	}
	err := e.transport.Send(context.Background(), msg)
	e.tracker.Retire(cmd.id, rpcpeer.OriginReceived, nil)
	if err != nil {
		wrapped := rpcpeer.WrapIO(err)
		cmd.errResult <- wrapped
		e.shutdown(wrapped)
		return
	}
	cmd.errResult <- nil
}

func (e *engine[B]) handleSendUpdate(cmd command[B]) {
	if e.bodyTooLarge(cmd.body.Len()) {
		cmd.errResult <- rpcpeer.NewError(rpcpeer.KindMessageTooLarge, nil)
		return
	}
	t := rpcpeer.TypeRequesterUpdate
	if cmd.origin == rpcpeer.OriginReceived {
		t = rpcpeer.TypeResponderUpdate
	}
	msg := rpcpeer.Message[B]{
		Header: rpcpeer.Header{Type: t, RequestID: cmd.id, ServiceID: 0},
		Body:   cmd.body,
	}
	err := e.transport.Send(context.Background(), msg)
	if err != nil {
		wrapped := rpcpeer.WrapIO(err)
		cmd.errResult <- wrapped
		e.shutdown(wrapped)
		return
	}
	cmd.errResult <- nil
}

func (e *engine[B]) handleSendStream(cmd command[B]) {
	if e.bodyTooLarge(cmd.body.Len()) {
		cmd.errResult <- rpcpeer.NewError(rpcpeer.KindMessageTooLarge, nil)
		return
	}
	msg := rpcpeer.Message[B]{
		Header: rpcpeer.Header{Type: rpcpeer.TypeStream, RequestID: 0, ServiceID: cmd.serviceID},
		Body:   cmd.body,
	}
	err := e.transport.Send(context.Background(), msg)
	if err != nil {
		wrapped := rpcpeer.WrapIO(err)
		cmd.errResult <- wrapped
		e.shutdown(wrapped)
		return
	}
	cmd.errResult <- nil
}

// handleCloseReceived synthesizes the abort response: a dropped
// ReceivedRequestHandle that never sent a Response gets one fabricated
// here, so the peer's Sent-side state is not stranded.
func (e *engine[B]) handleCloseReceived(cmd command[B]) {
	rpclog.ForRequest(cmd.id, rpcpeer.OriginReceived.String()).
		WithField("kind", rpcpeer.KindAborted.String()).
		Info("synthesizing abort response for dropped received handle")
	msg := rpcpeer.Message[B]{
		Header: rpcpeer.Header{Type: rpcpeer.TypeResponse, RequestID: cmd.id, ServiceID: rpcpeer.AbortedServiceID},
		Body:   e.errBody("cancelled locally"),
	}
	err := e.transport.Send(context.Background(), msg)
	e.tracker.Retire(cmd.id, rpcpeer.OriginReceived, nil)
	if err != nil {
		e.shutdown(rpcpeer.WrapIO(err))
	}
	if cmd.errResult != nil {
		cmd.errResult <- nil
	}
}

// submit sends cmd to the command loop and waits for its errResult,
// honoring ctx cancellation and engine shutdown.
func (e *engine[B]) submit(ctx context.Context, cmd command[B]) *rpcpeer.Error {
	select {
	case e.commands <- cmd:
	case <-e.done:
		return e.closeErrOrDefault()
	case <-ctx.Done():
		return rpcpeer.NewError(rpcpeer.KindIO, ctx.Err())
	}
	select {
	case err := <-cmd.errResult:
		return err
	case <-e.done:
		return e.closeErrOrDefault()
	}
}

// submitSendRequest is submit's SendRequest-specific counterpart,
// returning the freshly registered entry instead of a bare error.
func (e *engine[B]) submitSendRequest(ctx context.Context, cmd command[B]) (*tracker.Entry[B], *rpcpeer.Error) {
	select {
	case e.commands <- cmd:
	case <-e.done:
		return nil, e.closeErrOrDefault()
	case <-ctx.Done():
		return nil, rpcpeer.NewError(rpcpeer.KindIO, ctx.Err())
	}
	select {
	case res := <-cmd.sentResult:
		return res.entry, res.err
	case <-e.done:
		return nil, e.closeErrOrDefault()
	}
}

// releaseRef decrements the handle refcount; at zero, it requests
// shutdown: dropping the last write handle plus the read handle
// triggers engine shutdown.
func (e *engine[B]) releaseRef() {
	if e.refs.Add(-1) == 0 {
		e.shutdown(nil)
	}
}
