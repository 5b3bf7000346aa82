// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tracker implements the in-flight request table: a per-origin
// table of request entries, a monotonic ID allocator for
// locally-initiated requests, and the bounded inbox each entry exposes
// to its handle.
//
// The Sent and Received tables are kept disjoint and keyed by Origin,
// each with its own id space; only the Sent table uses forward-probing
// allocation, since ids on the Received side are assigned by the peer.
package tracker

import (
	"sync"

	"code.hybscloud.com/rpcpeer"
)

// DispatchOutcome reports what Dispatch did with an inbound message.
type DispatchOutcome uint8

const (
	// Delivered means the message was pushed to the entry's inbox and
	// the entry remains open.
	Delivered DispatchOutcome = iota
	// Terminal means the message was a Response: it was delivered and
	// the entry has been retired.
	Terminal
	// NoSuchRequest means no open entry matched (id, origin); the
	// caller should drop the message silently.
	NoSuchRequest
)

// Entry is one tracked request.
type Entry[B rpcpeer.Body] struct {
	ID        uint32
	Origin    rpcpeer.Origin
	ServiceID int32

	inbox chan rpcpeer.Message[B]
	done  chan struct{}
	once  sync.Once
	err   *rpcpeer.Error
	mu    sync.Mutex // guards err
}

func newEntry[B rpcpeer.Body](id uint32, origin rpcpeer.Origin, serviceID int32, capacity int) *Entry[B] {
	return &Entry[B]{
		ID:        id,
		Origin:    origin,
		ServiceID: serviceID,
		inbox:     make(chan rpcpeer.Message[B], capacity),
		done:      make(chan struct{}),
	}
}

// Inbox returns the channel of inbound messages belonging to this
// entry. It is never closed directly (see Done); closing it would race
// against a concurrent dispatch. Consumers should select on Inbox and
// Done together and drain Inbox before trusting Done.
func (e *Entry[B]) Inbox() <-chan rpcpeer.Message[B] { return e.inbox }

// Done is closed exactly once, when the entry retires. CloseErr
// describes why.
func (e *Entry[B]) Done() <-chan struct{} { return e.done }

// CloseErr returns the terminal error recorded for this entry, or nil
// if it retired because a Response was delivered normally.
func (e *Entry[B]) CloseErr() *rpcpeer.Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Closed reports whether the entry has retired. This transitions
// monotonically false -> true and never reverts.
func (e *Entry[B]) Closed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// retire marks the entry terminal and records err (nil for a normal
// Response-terminated retirement). Safe to call more than once; only
// the first call takes effect.
func (e *Entry[B]) retire(err *rpcpeer.Error) {
	e.once.Do(func() {
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		close(e.done)
	})
}

// dispatch pushes msg to the inbox honoring policy. stop, when closed,
// aborts a blocking send (used so engine shutdown cannot deadlock a
// dispatch blocked on a full inbox under StrictOrdering).
func (e *Entry[B]) dispatch(msg rpcpeer.Message[B], policy rpcpeer.BackpressurePolicy, stop <-chan struct{}) {
	if policy == rpcpeer.DropOldestUpdates && msg.Type.IsUpdate() {
		// msg.Type is an update (non-terminal); try a non-blocking send
		// first, then drop the oldest buffered update to make room.
		select {
		case e.inbox <- msg:
			return
		default:
		}
		select {
		case <-e.inbox:
		default:
		}
		select {
		case e.inbox <- msg:
		case <-stop:
		}
		return
	}
	select {
	case e.inbox <- msg:
	case <-stop:
	}
}

// Tracker owns the Sent and Received entry tables for one connection.
type Tracker[B rpcpeer.Body] struct {
	mu       sync.Mutex
	sent     map[uint32]*Entry[B]
	received map[uint32]*Entry[B]
	nextID   uint32

	inboxCapacity int
	backpressure  rpcpeer.BackpressurePolicy
	stop          <-chan struct{}
}

// New builds an empty Tracker. stop is the engine's shutdown signal
// channel, closed once the engine begins tearing down.
func New[B rpcpeer.Body](inboxCapacity int, backpressure rpcpeer.BackpressurePolicy, stop <-chan struct{}) *Tracker[B] {
	return &Tracker[B]{
		sent:          make(map[uint32]*Entry[B]),
		received:      make(map[uint32]*Entry[B]),
		inboxCapacity: inboxCapacity,
		backpressure:  backpressure,
		stop:          stop,
	}
}

// RegisterSent allocates a fresh request ID and inserts a Sent entry.
// The allocator probes forward from the last-issued ID, skipping any
// value currently live in the Sent table, and wraps on overflow.
func (t *Tracker[B]) RegisterSent(serviceID int32) (*Entry[B], *rpcpeer.Error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := t.nextID
	id := start
	for {
		if _, exists := t.sent[id]; !exists {
			break
		}
		id++
		if id == start {
			return nil, rpcpeer.NewError(rpcpeer.KindNoFreeRequestID, nil)
		}
	}
	t.nextID = id + 1

	e := newEntry[B](id, rpcpeer.OriginSent, serviceID, t.inboxCapacity)
	t.sent[id] = e
	return e, nil
}

// RegisterReceived inserts a Received entry for an inbound Request,
// rejecting a reused id still live in the Received table.
func (t *Tracker[B]) RegisterReceived(id uint32, serviceID int32) (*Entry[B], *rpcpeer.Error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.received[id]; exists {
		return nil, rpcpeer.NewError(rpcpeer.KindDuplicateRequestID, nil)
	}
	e := newEntry[B](id, rpcpeer.OriginReceived, serviceID, t.inboxCapacity)
	t.received[id] = e
	return e, nil
}

func (t *Tracker[B]) table(origin rpcpeer.Origin) map[uint32]*Entry[B] {
	if origin == rpcpeer.OriginSent {
		return t.sent
	}
	return t.received
}

// Lookup returns the open entry for (id, origin), if any.
func (t *Tracker[B]) Lookup(id uint32, origin rpcpeer.Origin) (*Entry[B], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.table(origin)[id]
	return e, ok
}

// Dispatch finds the entry for (id, origin), pushes msg to its inbox,
// and retires it if msg is a Response, the unique terminator.
func (t *Tracker[B]) Dispatch(id uint32, origin rpcpeer.Origin, msg rpcpeer.Message[B]) DispatchOutcome {
	t.mu.Lock()
	tbl := t.table(origin)
	e, ok := tbl[id]
	if ok && msg.Type == rpcpeer.TypeResponse {
		delete(tbl, id)
	}
	t.mu.Unlock()

	if !ok {
		return NoSuchRequest
	}

	e.dispatch(msg, t.backpressure, t.stop)

	if msg.Type == rpcpeer.TypeResponse {
		e.retire(nil)
		return Terminal
	}
	return Delivered
}

// Retire removes and closes the entry for (id, origin) with the given
// terminal error (nil for a normal, already-delivered Response).
// Safe to call when no such entry exists.
func (t *Tracker[B]) Retire(id uint32, origin rpcpeer.Origin, err *rpcpeer.Error) {
	t.mu.Lock()
	tbl := t.table(origin)
	e, ok := tbl[id]
	if ok {
		delete(tbl, id)
	}
	t.mu.Unlock()

	if ok {
		e.retire(err)
	}
}

// SnapshotOpen returns every currently-open entry across both tables,
// for shutdown-time PeerClosed fan-out.
func (t *Tracker[B]) SnapshotOpen() []*Entry[B] {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Entry[B], 0, len(t.sent)+len(t.received))
	for _, e := range t.sent {
		out = append(out, e)
	}
	for _, e := range t.received {
		out = append(out, e)
	}
	return out
}

// RetireAll closes every open entry with err and empties both tables.
// Called once at engine shutdown.
func (t *Tracker[B]) RetireAll(err *rpcpeer.Error) {
	t.mu.Lock()
	entries := make([]*Entry[B], 0, len(t.sent)+len(t.received))
	for _, e := range t.sent {
		entries = append(entries, e)
	}
	for _, e := range t.received {
		entries = append(entries, e)
	}
	t.sent = make(map[uint32]*Entry[B])
	t.received = make(map[uint32]*Entry[B])
	t.mu.Unlock()

	for _, e := range entries {
		e.retire(err)
	}
}
