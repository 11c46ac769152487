// Package frame slices the binary WebSocket frames of the Trovo chat
// transport into their embedded message blob.
//
// Header fields (big-endian, fixed offsets):
//
//	[0-3]   total_len  uint32  length of the whole frame
//	[8-9]   opcode     uint16  frame kind, 3 = chat data
//	[18-21] data_len   uint32  length of the embedded blob
//
// The blob is the trailing data_len bytes of the frame, that is
// buf[total_len-data_len : total_len].
package frame

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	OpcodeChatData uint16 = 3

	totalLenOffset = 0
	opcodeOffset   = 8
	dataLenOffset  = 18

	// MinHeaderSize is the smallest buffer that holds every header field.
	MinHeaderSize = dataLenOffset + 4
)

// ErrFrameTooShort is returned when the header fields describe a blob the
// buffer cannot contain.
var ErrFrameTooShort = errors.New("frame: too short")

// Frame is the decoded view of one transport frame. Blob aliases the input
// buffer; Decode never copies or mutates it.
type Frame struct {
	TotalLength uint32
	Opcode      uint16
	DataLength  uint32
	Blob        []byte
}

// IsData reports whether the frame carries a chat message blob.
func (f Frame) IsData() bool { return f.Opcode == OpcodeChatData }

// Decode reads the header of buf and returns the embedded blob.
//
// Frames whose opcode is not OpcodeChatData are returned with a nil Blob
// and a nil error; their payload is not inspected.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < opcodeOffset+2 {
		return Frame{}, fmt.Errorf("%w: %d bytes, need %d for opcode", ErrFrameTooShort, len(buf), opcodeOffset+2)
	}

	f := Frame{Opcode: binary.BigEndian.Uint16(buf[opcodeOffset : opcodeOffset+2])}
	if !f.IsData() {
		return f, nil
	}

	if len(buf) < MinHeaderSize {
		return Frame{}, fmt.Errorf("%w: %d bytes, need %d for header", ErrFrameTooShort, len(buf), MinHeaderSize)
	}

	f.TotalLength = binary.BigEndian.Uint32(buf[totalLenOffset : totalLenOffset+4])
	f.DataLength = binary.BigEndian.Uint32(buf[dataLenOffset : dataLenOffset+4])

	start := int64(f.TotalLength) - int64(f.DataLength)
	if start < 0 {
		return Frame{}, fmt.Errorf("%w: data_len %d exceeds total_len %d", ErrFrameTooShort, f.DataLength, f.TotalLength)
	}
	if int64(len(buf)) < int64(f.TotalLength) {
		return Frame{}, fmt.Errorf("%w: %d bytes, total_len %d", ErrFrameTooShort, len(buf), f.TotalLength)
	}

	f.Blob = buf[start:f.TotalLength:f.TotalLength]
	return f, nil
}

// DecodeBase64 decodes a base64 payload, as reported by browser devtools
// network events, and then decodes the frame.
func DecodeBase64(payload string) (Frame, error) {
	buf, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("frame: decode base64: %w", err)
	}
	return Decode(buf)
}

// Encode builds a frame with the given opcode whose blob starts right after
// a header of headerLen bytes. headerLen is raised to MinHeaderSize.
func Encode(opcode uint16, blob []byte, headerLen int) []byte {
	if headerLen < MinHeaderSize {
		headerLen = MinHeaderSize
	}

	out := make([]byte, headerLen+len(blob))
	binary.BigEndian.PutUint32(out[totalLenOffset:], uint32(len(out)))
	binary.BigEndian.PutUint16(out[opcodeOffset:], opcode)
	binary.BigEndian.PutUint32(out[dataLenOffset:], uint32(len(blob)))
	copy(out[headerLen:], blob)
	return out
}
