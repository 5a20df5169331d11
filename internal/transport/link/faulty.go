package link

import (
	"context"
	"sync"

	"github.com/alxayo/ble-chunk-transport/internal/transport/framer"
)

// FaultyLink wraps a Link and drops the first DropFirstN control-channel ACKs
// emitted for each distinct chunk number, simulating a lossy peer for the
// retransmission-bound and timeout property tests. A DropFirstN of zero
// behaves like a pass-through link.
type FaultyLink struct {
	Link
	DropFirstN int

	mu      sync.Mutex
	dropped map[uint32]int
}

// NewFaultyLink wraps inner, dropping the first dropFirstN ACKs per chunk
// number on the control channel.
func NewFaultyLink(inner Link, dropFirstN int) *FaultyLink {
	return &FaultyLink{Link: inner, DropFirstN: dropFirstN, dropped: make(map[uint32]int)}
}

func (f *FaultyLink) WriteControl(ctx context.Context, ack []byte) error {
	if f.DropFirstN <= 0 {
		return f.Link.WriteControl(ctx, ack)
	}
	parsed, err := framer.DecodeAck(ack)
	if err != nil {
		return f.Link.WriteControl(ctx, ack)
	}
	f.mu.Lock()
	count := f.dropped[parsed.ChunkNumber]
	drop := count < f.DropFirstN
	f.dropped[parsed.ChunkNumber] = count + 1
	f.mu.Unlock()
	if drop {
		return nil
	}
	return f.Link.WriteControl(ctx, ack)
}

var _ Link = (*FaultyLink)(nil)
