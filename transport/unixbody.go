// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

// UnixBody is the Body implementation for SOCK_SEQPACKET/SOCK_DGRAM
// Unix transports that pass file descriptors alongside the payload via
// SCM_RIGHTS ancillary data.
//
// Grounded on the skopeo proxy's FD-passing convention
// (syscall.UnixRights / ReadMsgUnix / SendMsgUnix): the payload and its
// file descriptors are read and written together as one datagram unit.
type UnixBody struct {
	payload []byte
	fds     []int
}

// NewUnixBody constructs a UnixBody from a payload and a set of file
// descriptors to carry alongside it. The payload is copied; ownership
// of the file descriptors transfers to the caller of the eventual send.
func NewUnixBody(payload []byte, fds []int) UnixBody {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	var fdCopy []int
	if len(fds) > 0 {
		fdCopy = make([]int, len(fds))
		copy(fdCopy, fds)
	}
	return UnixBody{payload: cp, fds: fdCopy}
}

// Bytes implements rpcpeer.Body.
func (b UnixBody) Bytes() []byte { return b.payload }

// Ancillary implements rpcpeer.Body, returning the carried file descriptors.
func (b UnixBody) Ancillary() []int { return b.fds }

// ErrorText implements rpcpeer.Body, treating the payload as a
// human-readable error description.
func (b UnixBody) ErrorText() (string, bool) {
	if len(b.payload) == 0 {
		return "", false
	}
	return string(b.payload), true
}

// Len implements rpcpeer.Body.
func (b UnixBody) Len() int { return len(b.payload) }
