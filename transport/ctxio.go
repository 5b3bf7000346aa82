// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"time"
)

// deadliner is satisfied by net.Conn and friends.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// withDeadline runs fn to completion, honoring ctx cancellation by
// forcing conn's pending I/O to unblock via SetDeadline when conn
// supports it. This lets context.Context cancellation work over the
// plain net.Conn/io.ReadWriteCloser transports without requiring every
// backend to be context-native.
func withDeadline(ctx context.Context, conn any, fn func() error) error {
	dl, ok := conn.(deadliner)
	if !ok {
		return fn()
	}
	if deadline, has := ctx.Deadline(); has {
		_ = dl.SetDeadline(deadline)
		defer dl.SetDeadline(time.Time{})
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = dl.SetDeadline(time.Unix(0, 1))
		<-done
		return ctx.Err()
	}
}
