package framer

import (
	"bytes"
	"testing"
)

func TestChunkSize(t *testing.T) {
	if got := ChunkSize(DefaultMTU); got != 168 {
		t.Fatalf("expected CHUNK_SIZE=168 for MTU=185, got %d", got)
	}
	if got := ChunkSize(10); got != 0 {
		t.Fatalf("expected 0 for MTU smaller than header, got %d", got)
	}
	if got := ChunkSize(1000); got != 255 {
		t.Fatalf("expected cap at 255, got %d", got)
	}
}

func TestEncodeDecodeChunkRoundTrip(t *testing.T) {
	payload := []byte("hello ble")
	global := CRC32([]byte("hello ble full payload"))
	frame, err := EncodeChunk(1, 3, global, 22, payload, ChunkSize(DefaultMTU))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(frame) != HeaderSize+len(payload) {
		t.Fatalf("unexpected frame length %d", len(frame))
	}

	h, body, err := DecodeChunk(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.ChunkNum != 1 || h.TotalChunks != 3 || int(h.DataSize) != len(payload) {
		t.Fatalf("unexpected header: %+v", h)
	}
	if h.GlobalCRC32 != global || h.TotalDataSize != 22 {
		t.Fatalf("unexpected crc/size fields: %+v", h)
	}
	if h.ChunkCRC32 != CRC32(payload) {
		t.Fatalf("chunk crc mismatch")
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("payload mismatch: got %q want %q", body, payload)
	}
}

func TestEncodeChunkRejectsOversizedPayload(t *testing.T) {
	payload := make([]byte, 200)
	if _, err := EncodeChunk(1, 1, 0, 200, payload, ChunkSize(DefaultMTU)); err == nil {
		t.Fatalf("expected validation error for payload exceeding chunk size")
	}
	over255 := make([]byte, 256)
	if _, err := EncodeChunk(1, 1, 0, 256, over255, 1000); err == nil {
		t.Fatalf("expected validation error for payload > 255 bytes")
	}
}

func TestEncodeChunkIntoMatchesEncodeChunk(t *testing.T) {
	payload := []byte("pooled payload")
	global := CRC32([]byte("whole transfer"))

	want, err := EncodeChunk(2, 5, global, 99, payload, ChunkSize(DefaultMTU))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	buf := make([]byte, HeaderSize+len(payload))
	got, err := EncodeChunkInto(buf, 2, 5, global, 99, payload, ChunkSize(DefaultMTU))
	if err != nil {
		t.Fatalf("encode into: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("EncodeChunkInto diverged from EncodeChunk: got %x want %x", got, want)
	}

	// The buffer handed in is reusable across chunks of differing payload
	// length, as the Sender does across retries and subsequent chunks.
	shorter := payload[:3]
	got2, err := EncodeChunkInto(buf, 3, 5, global, 99, shorter, ChunkSize(DefaultMTU))
	if err != nil {
		t.Fatalf("encode into (shorter): %v", err)
	}
	if len(got2) != HeaderSize+len(shorter) {
		t.Fatalf("expected trimmed frame length %d, got %d", HeaderSize+len(shorter), len(got2))
	}
}

func TestEncodeChunkIntoRejectsUndersizedBuffer(t *testing.T) {
	payload := make([]byte, 50)
	buf := make([]byte, HeaderSize+10)
	if _, err := EncodeChunkInto(buf, 1, 1, 0, 50, payload, ChunkSize(DefaultMTU)); err == nil {
		t.Fatalf("expected validation error for undersized destination buffer")
	}
}

func TestDecodeChunkTooShort(t *testing.T) {
	if _, _, err := DecodeChunk(make([]byte, HeaderSize-1)); err == nil {
		t.Fatalf("expected error for truncated header")
	}
}

func TestDecodeChunkSizeMismatch(t *testing.T) {
	frame := make([]byte, HeaderSize+5)
	frame[4] = 10 // claims 10 bytes of payload but frame only carries 5
	if _, _, err := DecodeChunk(frame); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}

func TestEncodeDecodeAckRoundTrip(t *testing.T) {
	b := EncodeAck(AckChunkReceived, 4, 9, 0xdeadbeef)
	if len(b) != AckSize {
		t.Fatalf("expected %d bytes, got %d", AckSize, len(b))
	}
	ack, err := DecodeAck(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ack.Type != AckChunkReceived || ack.ChunkNumber != 4 || ack.TotalChunks != 9 || ack.GlobalCRC32 != 0xdeadbeef {
		t.Fatalf("unexpected ack: %+v", ack)
	}
}

func TestEncodeAckIntoMatchesEncodeAck(t *testing.T) {
	want := EncodeAck(AckTransferFailed, 0, 7, 0xcafef00d)
	buf := make([]byte, AckSize)
	got := EncodeAckInto(buf, AckTransferFailed, 0, 7, 0xcafef00d)
	if !bytes.Equal(got, want) {
		t.Fatalf("EncodeAckInto diverged from EncodeAck: got %x want %x", got, want)
	}
}

func TestDecodeAckWrongSize(t *testing.T) {
	if _, err := DecodeAck(make([]byte, AckSize-1)); err == nil {
		t.Fatalf("expected error for wrong-sized ack")
	}
}

func TestAckTypeString(t *testing.T) {
	cases := map[AckType]string{
		AckChunkReceived:    "CHUNK_RECEIVED",
		AckChunkError:       "CHUNK_ERROR",
		AckTransferComplete: "TRANSFER_COMPLETE",
		AckTransferSuccess:  "TRANSFER_SUCCESS",
		AckTransferFailed:   "TRANSFER_FAILED",
		AckType(0xff):       "UNKNOWN",
	}
	for typ, want := range cases {
		if got := typ.String(); got != want {
			t.Fatalf("AckType(%d).String() = %s, want %s", typ, got, want)
		}
	}
}

func TestCRC32KnownVector(t *testing.T) {
	// "123456789" is the standard CRC-32/IEEE test vector.
	if got := CRC32([]byte("123456789")); got != 0xCBF43926 {
		t.Fatalf("CRC32 mismatch: got %#x want %#x", got, 0xCBF43926)
	}
}
