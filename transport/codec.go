// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"encoding/binary"

	"code.hybscloud.com/rpcpeer"
)

// lengthPrefixLen is the byte-stream framing prefix width.
const lengthPrefixLen = 4

// encodeHeader writes h into the first HeaderLen bytes of dst,
// little-endian, independent of host byte order. dst must be at least
// HeaderLen long.
func encodeHeader(dst []byte, h rpcpeer.Header) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(h.Type))
	binary.LittleEndian.PutUint32(dst[4:8], h.RequestID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(h.ServiceID))
}

// decodeHeader parses the first HeaderLen bytes of src into a Header.
// src must be at least HeaderLen long.
func decodeHeader(src []byte) (rpcpeer.Header, error) {
	t := rpcpeer.MessageType(binary.LittleEndian.Uint32(src[0:4]))
	if !messageTypeValid(t) {
		return rpcpeer.Header{}, rpcpeer.NewError(rpcpeer.KindUnknownMessageType, nil)
	}
	h := rpcpeer.Header{
		Type:      t,
		RequestID: binary.LittleEndian.Uint32(src[4:8]),
		ServiceID: int32(binary.LittleEndian.Uint32(src[8:12])),
	}
	return h, nil
}

func messageTypeValid(t rpcpeer.MessageType) bool {
	return t <= rpcpeer.TypeStream
}

// encodeLengthPrefix writes the 4-byte little-endian frame length
// (HeaderLen + len(body)) used on byte-stream transports.
func encodeLengthPrefix(dst []byte, bodyLen int) {
	binary.LittleEndian.PutUint32(dst, uint32(rpcpeer.HeaderLen+bodyLen))
}

func decodeLengthPrefix(src []byte) uint32 {
	return binary.LittleEndian.Uint32(src)
}
