// Package framer encodes and decodes the two fixed-layout wire structures of
// the chunked transport: chunk frames (header + payload slice) and ACK
// messages. It is stateless; all limits and field bounds are enforced here
// so Sender and Receiver never have to re-derive them.
package framer

import (
	"encoding/binary"
	"hash/crc32"

	protoerr "github.com/alxayo/ble-chunk-transport/internal/errors"
)

// Wire limits and defaults (little-endian throughout, no alignment padding).
const (
	// HeaderSize is the fixed chunk header length in bytes.
	HeaderSize = 17
	// AckSize is the fixed ACK message length in bytes.
	AckSize = 13
	// DefaultMTU is the base frame budget when the link adapter doesn't report one.
	DefaultMTU = 185
	// MaxChunksPerTransfer bounds total_chunks for both sides.
	MaxChunksPerTransfer = 365
	// MaxTotalDataSize bounds the whole-payload size for a single transfer.
	MaxTotalDataSize = 65536
)

// ChunkSize returns the maximum payload bytes a single chunk may carry under
// the given MTU: CHUNK_SIZE = mtu - HeaderSize, capped at 255 (data_size is a
// single byte on the wire).
func ChunkSize(mtu int) int {
	size := mtu - HeaderSize
	if size > 255 {
		size = 255
	}
	if size < 0 {
		size = 0
	}
	return size
}

// AckType identifies the kind of acknowledgment carried by an Ack.
type AckType uint8

const (
	AckChunkReceived  AckType = 0x01
	AckChunkError     AckType = 0x02
	AckTransferComplete AckType = 0x03
	AckTransferSuccess  AckType = 0x04
	AckTransferFailed   AckType = 0x05
)

func (t AckType) String() string {
	switch t {
	case AckChunkReceived:
		return "CHUNK_RECEIVED"
	case AckChunkError:
		return "CHUNK_ERROR"
	case AckTransferComplete:
		return "TRANSFER_COMPLETE"
	case AckTransferSuccess:
		return "TRANSFER_SUCCESS"
	case AckTransferFailed:
		return "TRANSFER_FAILED"
	default:
		return "UNKNOWN"
	}
}

// ChunkHeader is the parsed 17-byte header preceding a chunk's payload bytes.
type ChunkHeader struct {
	ChunkNum      uint16
	TotalChunks   uint16
	DataSize      uint8
	ChunkCRC32    uint32
	GlobalCRC32   uint32
	TotalDataSize uint32
}

// Ack is the parsed 13-byte control-channel acknowledgment message.
type Ack struct {
	Type        AckType
	ChunkNumber uint32
	TotalChunks uint32
	GlobalCRC32 uint32
}

// CRC32 computes the IEEE 802.3 CRC-32 of b, matching the peer's checksum
// algorithm bit for bit.
func CRC32(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// EncodeChunk packs a chunk header and payload slice into a single frame
// ready for the data channel. Fails with a ValidationError if payload is
// larger than 255 bytes or exceeds chunkSize (the MTU-derived budget).
func EncodeChunk(chunkNum, totalChunks uint16, globalCRC32, totalDataSize uint32, payload []byte, chunkSize int) ([]byte, error) {
	return EncodeChunkInto(make([]byte, HeaderSize+len(payload)), chunkNum, totalChunks, globalCRC32, totalDataSize, payload, chunkSize)
}

// EncodeChunkInto is EncodeChunk but fills dst instead of allocating,
// returning dst trimmed to the frame's actual length. dst must have enough
// capacity for HeaderSize+len(payload); callers driving many chunks in a
// row (the Sender) can source dst from a buffer pool and reuse it across
// attempts of the same chunk.
func EncodeChunkInto(dst []byte, chunkNum, totalChunks uint16, globalCRC32, totalDataSize uint32, payload []byte, chunkSize int) ([]byte, error) {
	if len(payload) > 255 {
		return nil, protoerr.NewValidationError("framer.encode_chunk", errFrameTooLarge(len(payload), 255))
	}
	if chunkSize >= 0 && len(payload) > chunkSize {
		return nil, protoerr.NewValidationError("framer.encode_chunk", errFrameTooLarge(len(payload), chunkSize))
	}
	if cap(dst) < HeaderSize+len(payload) {
		return nil, protoerr.NewValidationError("framer.encode_chunk", errFrameTooLarge(len(payload), cap(dst)-HeaderSize))
	}

	frame := dst[:HeaderSize+len(payload)]
	binary.LittleEndian.PutUint16(frame[0:2], chunkNum)
	binary.LittleEndian.PutUint16(frame[2:4], totalChunks)
	frame[4] = byte(len(payload))
	binary.LittleEndian.PutUint32(frame[5:9], CRC32(payload))
	binary.LittleEndian.PutUint32(frame[9:13], globalCRC32)
	binary.LittleEndian.PutUint32(frame[13:17], totalDataSize)
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// DecodeChunk unpacks a frame into its header and payload slice (a view into
// frame, not a copy). Enforces minimum length and the data_size/frame-length
// consistency check; field range bounds (chunk_num, total_chunks, sizes) are
// left to the caller (Transfer/Receiver), which knows the active transfer's
// limits.
func DecodeChunk(frame []byte) (ChunkHeader, []byte, error) {
	if len(frame) < HeaderSize {
		return ChunkHeader{}, nil, protoerr.NewValidationError("framer.decode_chunk", errTooShort(len(frame)))
	}
	h := ChunkHeader{
		ChunkNum:      binary.LittleEndian.Uint16(frame[0:2]),
		TotalChunks:   binary.LittleEndian.Uint16(frame[2:4]),
		DataSize:      frame[4],
		ChunkCRC32:    binary.LittleEndian.Uint32(frame[5:9]),
		GlobalCRC32:   binary.LittleEndian.Uint32(frame[9:13]),
		TotalDataSize: binary.LittleEndian.Uint32(frame[13:17]),
	}
	want := HeaderSize + int(h.DataSize)
	if len(frame) != want {
		return ChunkHeader{}, nil, protoerr.NewValidationError("framer.decode_chunk", errSizeMismatch(len(frame), want))
	}
	return h, frame[HeaderSize:want], nil
}

// EncodeAck packs an ACK message for the control channel.
func EncodeAck(typ AckType, chunkNumber, totalChunks, globalCRC32 uint32) []byte {
	return EncodeAckInto(make([]byte, AckSize), typ, chunkNumber, totalChunks, globalCRC32)
}

// EncodeAckInto is EncodeAck but fills dst (which must have length/capacity
// of at least AckSize) instead of allocating, returning dst[:AckSize].
func EncodeAckInto(dst []byte, typ AckType, chunkNumber, totalChunks, globalCRC32 uint32) []byte {
	b := dst[:AckSize]
	b[0] = byte(typ)
	binary.LittleEndian.PutUint32(b[1:5], chunkNumber)
	binary.LittleEndian.PutUint32(b[5:9], totalChunks)
	binary.LittleEndian.PutUint32(b[9:13], globalCRC32)
	return b
}

// DecodeAck unpacks an ACK message.
func DecodeAck(b []byte) (Ack, error) {
	if len(b) != AckSize {
		return Ack{}, protoerr.NewValidationError("framer.decode_ack", errSizeMismatch(len(b), AckSize))
	}
	return Ack{
		Type:        AckType(b[0]),
		ChunkNumber: binary.LittleEndian.Uint32(b[1:5]),
		TotalChunks: binary.LittleEndian.Uint32(b[5:9]),
		GlobalCRC32: binary.LittleEndian.Uint32(b[9:13]),
	}, nil
}
