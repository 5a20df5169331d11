package transport

import (
	"time"

	"github.com/google/uuid"

	protoerr "github.com/alxayo/ble-chunk-transport/internal/errors"
)

// Direction distinguishes an outbound (send) transfer from an inbound
// (receive) transfer.
type Direction uint8

const (
	DirectionSend Direction = iota
	DirectionReceive
)

func (d Direction) String() string {
	if d == DirectionSend {
		return "send"
	}
	return "receive"
}

// Transfer is the per-direction entity described by the data model: an
// ordered slot array indexed by chunk_num, filled in arbitrary arrival order
// and reassembled by index. Unlike the teacher's ChunkStreamState (which
// concatenates FMT-compressed deltas into one rolling buffer) a Transfer
// keeps every chunk's bytes in its own slot so duplicate and out-of-order
// delivery are representable without losing data already received.
type Transfer struct {
	ID            uuid.UUID
	Direction     Direction
	TotalChunks   uint16
	GlobalCRC32   uint32
	TotalDataSize uint32

	slots         [][]byte
	receivedCount int
	lastActivity  time.Time

	// retries tracks attempts per chunk_num; only meaningful for send transfers.
	retries map[uint16]int
}

// NewTransfer allocates a Transfer, validating totalChunks/totalDataSize
// against the supplied Config limits.
func NewTransfer(dir Direction, totalChunks uint16, globalCRC32, totalDataSize uint32, cfg Config) (*Transfer, error) {
	if int(totalChunks) == 0 || int(totalChunks) > cfg.MaxChunksPerTransfer {
		return nil, protoerr.NewValidationError("transfer.new", errTooManyChunks(int(totalChunks), cfg.MaxChunksPerTransfer))
	}
	if int(totalDataSize) > cfg.MaxTotalDataSize {
		return nil, protoerr.NewValidationError("transfer.new", errPayloadTooLarge(int(totalDataSize), cfg.MaxTotalDataSize))
	}
	return &Transfer{
		ID:            uuid.New(),
		Direction:     dir,
		TotalChunks:   totalChunks,
		GlobalCRC32:   globalCRC32,
		TotalDataSize: totalDataSize,
		slots:         make([][]byte, totalChunks),
		lastActivity:  time.Now(),
		retries:       make(map[uint16]int),
	}, nil
}

// Matches reports whether a subsequent chunk's shape fields are consistent
// with this transfer's immutable identity (total_chunks, global_crc32).
func (t *Transfer) Matches(totalChunks uint16, globalCRC32 uint32) bool {
	return t.TotalChunks == totalChunks && t.GlobalCRC32 == globalCRC32
}

// HasSlot reports whether chunkNum (1-based) has already been filled.
func (t *Transfer) HasSlot(chunkNum uint16) bool {
	i := int(chunkNum) - 1
	if i < 0 || i >= len(t.slots) {
		return false
	}
	return t.slots[i] != nil
}

// FillSlot stores data for chunkNum if the slot is empty. Returns
// alreadyFilled=true (and does not overwrite) when the slot already held a
// chunk, per the duplicate-idempotence invariant.
func (t *Transfer) FillSlot(chunkNum uint16, data []byte) (alreadyFilled bool, err error) {
	i := int(chunkNum) - 1
	if chunkNum == 0 || i >= len(t.slots) {
		return false, protoerr.NewValidationError("transfer.fill_slot", errChunkNumOutOfRange(chunkNum, t.TotalChunks))
	}
	if t.slots[i] != nil {
		return true, nil
	}
	cp := append([]byte(nil), data...)
	t.slots[i] = cp
	t.receivedCount++
	t.lastActivity = time.Now()
	return false, nil
}

// ReceivedCount returns how many distinct slots have been filled.
func (t *Transfer) ReceivedCount() int { return t.receivedCount }

// Complete reports whether every slot has been filled.
func (t *Transfer) Complete() bool { return t.receivedCount == int(t.TotalChunks) }

// Assemble concatenates slots in index order. Only valid once Complete().
func (t *Transfer) Assemble() []byte {
	out := make([]byte, 0, t.TotalDataSize)
	for _, s := range t.slots {
		out = append(out, s...)
	}
	return out
}

// Touch refreshes the last-activity timestamp. FillSlot already refreshes it
// whenever a slot is filled; duplicates do not refresh it.
func (t *Transfer) Touch() { t.lastActivity = time.Now() }

// IdleFor returns how long it has been since the last slot was filled or
// touched.
func (t *Transfer) IdleFor(now time.Time) time.Duration { return now.Sub(t.lastActivity) }

// RecordAttempt increments and returns the retry counter for chunkNum,
// meaningful only for a send-direction transfer driving retransmission.
func (t *Transfer) RecordAttempt(chunkNum uint16) int {
	t.retries[chunkNum]++
	return t.retries[chunkNum]
}

// Attempts returns the current retry count for chunkNum (0 if untried).
func (t *Transfer) Attempts(chunkNum uint16) int { return t.retries[chunkNum] }
