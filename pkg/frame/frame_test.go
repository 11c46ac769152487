package frame

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"
)

func rawFrame(size int, total uint32, opcode uint16, dataLen uint32) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i)
	}
	binary.BigEndian.PutUint32(buf[0:4], total)
	binary.BigEndian.PutUint16(buf[8:10], opcode)
	binary.BigEndian.PutUint32(buf[18:22], dataLen)
	return buf
}

func TestDecodeSlicesTrailingBlob(t *testing.T) {
	buf := rawFrame(40, 40, OpcodeChatData, 10)

	f, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !f.IsData() {
		t.Fatal("expected data frame")
	}
	if f.TotalLength != 40 || f.DataLength != 10 {
		t.Fatalf("header = %d/%d, want 40/10", f.TotalLength, f.DataLength)
	}
	if !bytes.Equal(f.Blob, buf[30:40]) {
		t.Fatalf("blob = %v, want %v", f.Blob, buf[30:40])
	}
}

func TestDecodeIgnoresBytesPastTotalLength(t *testing.T) {
	buf := rawFrame(48, 40, OpcodeChatData, 10)

	f, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(f.Blob, buf[30:40]) {
		t.Fatalf("blob = %v, want %v", f.Blob, buf[30:40])
	}
}

func TestDecodeDoesNotMutateInput(t *testing.T) {
	buf := rawFrame(40, 40, OpcodeChatData, 10)
	before := append([]byte(nil), buf...)

	f, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(buf, before) {
		t.Fatal("input buffer was modified")
	}
	// Appending to the blob must not spill into the caller's buffer.
	_ = append(f.Blob, 0xff)
	if !bytes.Equal(buf, before) {
		t.Fatal("append to blob modified input buffer")
	}
}

func TestDecodeNonDataFrame(t *testing.T) {
	for _, opcode := range []uint16{0, 1, 2, 4, 0xffff} {
		// Header lengths are nonsense on purpose: they must not be inspected.
		buf := rawFrame(MinHeaderSize, 0xffffffff, opcode, 0xffffffff)
		f, err := Decode(buf)
		if err != nil {
			t.Fatalf("opcode %d: unexpected error %v", opcode, err)
		}
		if f.IsData() {
			t.Fatalf("opcode %d: reported as data frame", opcode)
		}
		if f.Blob != nil {
			t.Fatalf("opcode %d: expected nil blob", opcode)
		}
	}
}

func TestDecodeFrameTooShort(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{name: "no opcode", buf: []byte{0, 0, 0, 1}},
		{name: "no data length", buf: []byte{0, 0, 0, 20, 0, 0, 0, 0, 0, 3, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
		{name: "data longer than total", buf: rawFrame(40, 8, OpcodeChatData, 10)},
		{name: "buffer shorter than total", buf: rawFrame(40, 64, OpcodeChatData, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.buf)
			if !errors.Is(err, ErrFrameTooShort) {
				t.Fatalf("expected ErrFrameTooShort, got %v", err)
			}
		})
	}
}

func TestDecodeEmptyBlob(t *testing.T) {
	f, err := Decode(rawFrame(22, 22, OpcodeChatData, 0))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(f.Blob) != 0 {
		t.Fatalf("blob len = %d, want 0", len(f.Blob))
	}
}

func TestEncodeDecode(t *testing.T) {
	blob := []byte("hello from the chat stream")
	encoded := Encode(OpcodeChatData, blob, 32)
	if len(encoded) != 32+len(blob) {
		t.Fatalf("encoded length = %d, want %d", len(encoded), 32+len(blob))
	}

	f, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(f.Blob, blob) {
		t.Fatal("blob mismatch")
	}
}

func TestEncodeRaisesShortHeader(t *testing.T) {
	encoded := Encode(OpcodeChatData, []byte("x"), 4)
	if len(encoded) != MinHeaderSize+1 {
		t.Fatalf("encoded length = %d, want %d", len(encoded), MinHeaderSize+1)
	}
}

func TestDecodeBase64(t *testing.T) {
	blob := []byte("payload")
	payload := base64.StdEncoding.EncodeToString(Encode(OpcodeChatData, blob, 0))

	f, err := DecodeBase64(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(f.Blob, blob) {
		t.Fatal("blob mismatch")
	}

	if _, err := DecodeBase64("%%%"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}
