// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import "io"

// pipeConn combines the two halves of a full-duplex in-memory pipe into
// a single io.ReadWriteCloser, the same shape framer.NewPipe used for
// its io.Pipe-backed loopback transport.
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (c *pipeConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *pipeConn) Write(p []byte) (int, error) { return c.w.Write(p) }
func (c *pipeConn) Close() error {
	rerr := c.r.Close()
	werr := c.w.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

// NewTransportPipe returns a pair of StreamBody transports connected by
// two crossed in-memory io.Pipe channels: anything sent on one side is
// received on the other. Useful for tests that need a deterministic,
// boundary-NOT-preserving stream transport without real sockets.
func NewTransportPipe(maxBodyLen int) (a, b *StreamTransport) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a = NewStreamTransport(&pipeConn{r: ar, w: aw}, maxBodyLen)
	b = NewStreamTransport(&pipeConn{r: br, w: bw}, maxBodyLen)
	return a, b
}
