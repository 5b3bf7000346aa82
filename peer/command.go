// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package peer

import (
	"code.hybscloud.com/rpcpeer"
	"code.hybscloud.com/rpcpeer/tracker"
)

// commandKind enumerates the operations the command loop can perform
// on behalf of a handle: SendRequest, SendResponse, SendUpdate,
// SendStream, CloseSent, CloseReceived, Shutdown, and the engine's own
// duplicate-id rejection.
type commandKind uint8

const (
	cmdSendRequest commandKind = iota
	cmdSendResponse
	cmdSendUpdate
	cmdSendStream
	cmdCloseSent
	cmdCloseReceived
	cmdShutdown
	// cmdRejectDuplicate sends a duplicate-id rejection Response without
	// touching tracker state (no entry was registered for the rejected
	// occurrence; the live entry sharing its id must not be retired).
	cmdRejectDuplicate
)

// sentResult is the reply to a SendRequest command: the freshly
// registered Sent entry, or an error if allocation/send failed.
type sentResult[B rpcpeer.Body] struct {
	entry *tracker.Entry[B]
	err   *rpcpeer.Error
}

// command is the single envelope every handle submits to the engine's
// command channel: a write request plus the reply channel its caller
// blocks on, generalized to this protocol's richer command set.
type command[B rpcpeer.Body] struct {
	kind      commandKind
	id        uint32
	origin    rpcpeer.Origin
	serviceID int32
	body      B

	sentResult chan sentResult[B]
	errResult  chan *rpcpeer.Error
}
