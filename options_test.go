// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcpeer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMeetsSpecFloor(t *testing.T) {
	c := DefaultConfig()
	require.GreaterOrEqual(t, c.MaxBodyLen, 4<<20)
	require.Equal(t, 32, c.InboxCapacity)
	require.Equal(t, 32, c.CommandQueueCapacity)
	require.Equal(t, StrictOrdering, c.Backpressure)
}

func TestNewConfigAppliesOptionsOverDefaults(t *testing.T) {
	c := NewConfig(
		WithMaxBodyLen(1024),
		WithInboxCapacity(4),
		WithCommandQueueCapacity(2),
		WithBackpressure(DropOldestUpdates),
	)
	require.Equal(t, 1024, c.MaxBodyLen)
	require.Equal(t, 4, c.InboxCapacity)
	require.Equal(t, 2, c.CommandQueueCapacity)
	require.Equal(t, DropOldestUpdates, c.Backpressure)
}
