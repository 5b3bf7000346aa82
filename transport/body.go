// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

// StreamBody is the plain byte-payload Body implementation used by
// byte-stream and plain datagram transports that carry no ancillary
// data.
type StreamBody []byte

// NewStreamBody constructs a StreamBody from a payload, copying it so
// callers may reuse their buffer.
func NewStreamBody(b []byte) StreamBody {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

// Bytes implements rpcpeer.Body.
func (b StreamBody) Bytes() []byte { return b }

// Ancillary implements rpcpeer.Body; StreamBody never carries file descriptors.
func (b StreamBody) Ancillary() []int { return nil }

// ErrorText implements rpcpeer.Body by treating the whole payload as a
// human-readable error description.
func (b StreamBody) ErrorText() (string, bool) {
	if len(b) == 0 {
		return "", false
	}
	return string(b), true
}

// Len implements rpcpeer.Body.
func (b StreamBody) Len() int { return len(b) }
