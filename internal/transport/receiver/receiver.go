// Package receiver validates, deduplicates, and reassembles inbound chunks
// into a whole payload, driving the control-channel ACK traffic that tells
// the peer's Sender when to advance or retransmit.
package receiver

import (
	"context"
	"log/slog"
	"time"

	"github.com/alxayo/ble-chunk-transport/internal/bufpool"
	protoerr "github.com/alxayo/ble-chunk-transport/internal/errors"
	"github.com/alxayo/ble-chunk-transport/internal/logger"
	"github.com/alxayo/ble-chunk-transport/internal/stats"
	"github.com/alxayo/ble-chunk-transport/internal/transport"
	"github.com/alxayo/ble-chunk-transport/internal/transport/framer"
	"github.com/alxayo/ble-chunk-transport/internal/transport/link"
)

// Outcome reports what a single HandleChunk or CheckIdle call produced.
// Done is true exactly when the active receive transfer has finished, either
// successfully (Payload set) or terminally (Err set); both fields are never
// set together.
type Outcome struct {
	Done    bool
	Payload []byte
	Err     error
}

// Receiver owns at most one active receive transfer at a time. Not safe for
// concurrent use: the Session serializes every call with its own mutex.
type Receiver struct {
	link  link.Link
	cfg   transport.Config
	stats *stats.Stats
	log   *slog.Logger

	active      *transport.Transfer
	onProgress  func(current, total int)
}

// New builds a Receiver bound to a link, configuration, and stats sink.
func New(l link.Link, cfg transport.Config, st *stats.Stats, log *slog.Logger) *Receiver {
	if log == nil {
		log = logger.Logger()
	}
	return &Receiver{link: l, cfg: cfg, stats: st, log: log}
}

// SetProgressHandler installs a callback invoked after every chunk is
// successfully filled into the active transfer (duplicates excluded).
func (r *Receiver) SetProgressHandler(fn func(current, total int)) { r.onProgress = fn }

// Active reports whether a receive transfer is currently in progress.
func (r *Receiver) Active() bool { return r.active != nil }

// HandleChunk processes one inbound data-channel frame. Malformed frames and
// duplicate chunks are acknowledged or dropped without producing an Outcome
// (nil, nil); a non-nil Outcome means the active transfer just finished.
func (r *Receiver) HandleChunk(ctx context.Context, frame []byte) (*Outcome, error) {
	h, payload, err := framer.DecodeChunk(frame)
	if err != nil {
		r.ackError(ctx, 0, 0, 0)
		return nil, nil
	}

	if framer.CRC32(payload) != h.ChunkCRC32 {
		r.stats.IncCRCErrors()
		r.ackError(ctx, uint32(h.ChunkNum), uint32(h.TotalChunks), h.GlobalCRC32)
		return nil, nil
	}

	if r.active == nil {
		tr, err := transport.NewTransfer(transport.DirectionReceive, h.TotalChunks, h.GlobalCRC32, h.TotalDataSize, r.cfg)
		if err != nil {
			r.ackError(ctx, uint32(h.ChunkNum), uint32(h.TotalChunks), h.GlobalCRC32)
			return nil, nil
		}
		r.active = tr
	} else if !r.active.Matches(h.TotalChunks, h.GlobalCRC32) {
		r.ackError(ctx, uint32(h.ChunkNum), uint32(h.TotalChunks), h.GlobalCRC32)
		return r.fail(protoerr.NewIntegrityError("receiver.chunk", errInconsistentTransfer()))
	}

	tr := r.active
	chunkLog := logger.WithChunk(logger.WithTransfer(r.log, tr.ID.String(), "receive", int(tr.TotalChunks), tr.GlobalCRC32), int(h.ChunkNum), int(tr.TotalChunks))

	if tr.HasSlot(h.ChunkNum) {
		r.ackReceived(ctx, uint32(h.ChunkNum), uint32(tr.TotalChunks), tr.GlobalCRC32)
		logger.Category(chunkLog, logger.CategoryChunk).Debug("duplicate chunk, re-acknowledged")
		return nil, nil
	}

	if _, err := tr.FillSlot(h.ChunkNum, payload); err != nil {
		r.ackError(ctx, uint32(h.ChunkNum), uint32(tr.TotalChunks), tr.GlobalCRC32)
		return nil, nil
	}
	r.stats.AddDataReceived(len(payload))
	r.ackReceived(ctx, uint32(h.ChunkNum), uint32(tr.TotalChunks), tr.GlobalCRC32)
	logger.Category(chunkLog, logger.CategoryChunk).Debug("chunk received", "received_count", tr.ReceivedCount())
	if r.onProgress != nil {
		r.onProgress(tr.ReceivedCount(), int(tr.TotalChunks))
	}

	if !tr.Complete() {
		return nil, nil
	}

	assembled := tr.Assemble()
	if framer.CRC32(assembled) != tr.GlobalCRC32 {
		r.stats.IncCRCErrors()
		r.emitAck(ctx, framer.AckTransferFailed, 0, uint32(tr.TotalChunks), tr.GlobalCRC32)
		return r.fail(protoerr.NewIntegrityError("receiver.global_crc", errGlobalCRCMismatch()))
	}

	r.emitAck(ctx, framer.AckTransferComplete, 0, uint32(tr.TotalChunks), tr.GlobalCRC32)
	r.emitAck(ctx, framer.AckTransferSuccess, 0, uint32(tr.TotalChunks), tr.GlobalCRC32)
	r.stats.MarkTransferSuccess(time.Now())
	r.active = nil
	return &Outcome{Done: true, Payload: assembled}, nil
}

// CheckIdle cancels the active transfer if it has been quiescent longer than
// cfg.ChunkTimeout (a ChunkTimeout <= 0 disables this check). Intended to be
// called by the Session's periodic tick while Active() is true.
func (r *Receiver) CheckIdle(now time.Time) *Outcome {
	if r.active == nil || r.cfg.ChunkTimeout <= 0 {
		return nil
	}
	if r.active.IdleFor(now) < r.cfg.ChunkTimeout {
		return nil
	}
	r.stats.IncTimeouts()
	r.active = nil
	return &Outcome{Done: true, Err: protoerr.NewLivenessError("receiver.chunk_timeout", r.cfg.ChunkTimeout, errChunkQuiescence())}
}

// Cancel aborts any in-progress receive transfer without emitting any
// wire traffic (used by Session.Cancel()).
func (r *Receiver) Cancel() { r.active = nil }

func (r *Receiver) fail(err error) (*Outcome, error) {
	r.active = nil
	return &Outcome{Done: true, Err: err}, nil
}

func (r *Receiver) ackReceived(ctx context.Context, chunkNumber, totalChunks, globalCRC32 uint32) {
	r.emitAck(ctx, framer.AckChunkReceived, chunkNumber, totalChunks, globalCRC32)
}

func (r *Receiver) ackError(ctx context.Context, chunkNumber, totalChunks, globalCRC32 uint32) {
	logger.Category(r.log, logger.CategoryACK).Debug("emitting chunk error ack", "chunk_number", chunkNumber)
	r.emitAck(ctx, framer.AckChunkError, chunkNumber, totalChunks, globalCRC32)
}

// emitAck encodes and writes an ACK using a pooled buffer; WriteControl
// copies the frame before returning (MemoryLink and any well-behaved Link),
// so the buffer is safe to release immediately after the write.
func (r *Receiver) emitAck(ctx context.Context, typ framer.AckType, chunkNumber, totalChunks, globalCRC32 uint32) {
	buf := bufpool.Get(framer.AckSize)
	ack := framer.EncodeAckInto(buf, typ, chunkNumber, totalChunks, globalCRC32)
	r.writeAck(ctx, ack)
	bufpool.Put(buf)
}

func (r *Receiver) writeAck(ctx context.Context, ack []byte) {
	if err := r.link.WriteControl(ctx, ack); err != nil {
		logger.Category(r.log, logger.CategoryACK).Warn("failed to write ack", "error", err)
	}
}
