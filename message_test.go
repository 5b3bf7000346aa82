// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcpeer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageTypeStringAndValid(t *testing.T) {
	cases := map[MessageType]string{
		TypeRequest:         "Request",
		TypeResponse:        "Response",
		TypeRequesterUpdate: "RequesterUpdate",
		TypeResponderUpdate: "ResponderUpdate",
		TypeStream:          "Stream",
	}
	for typ, want := range cases {
		require.Equal(t, want, typ.String())
		require.True(t, typ.valid())
	}
	require.Equal(t, "Unknown", MessageType(5).String())
	require.False(t, MessageType(5).valid())
}

func TestMessageTypeIsUpdate(t *testing.T) {
	require.True(t, TypeRequesterUpdate.IsUpdate())
	require.True(t, TypeResponderUpdate.IsUpdate())
	require.False(t, TypeRequest.IsUpdate())
	require.False(t, TypeResponse.IsUpdate())
	require.False(t, TypeStream.IsUpdate())
}

func TestOriginString(t *testing.T) {
	require.Equal(t, "sent", OriginSent.String())
	require.Equal(t, "received", OriginReceived.String())
}
