// Package sender drives a single outbound transfer: it frames the payload,
// emits chunks on the data channel in order, and retries each chunk against
// per-chunk ACKs delivered by the Session on a dedicated channel.
package sender

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

// Sender drives one send transfer at a time. It holds no transfer-spanning
// state of its own between calls to Run; the transfer's retry counters and
// slot bookkeeping live on the *transport.Transfer that Run builds per call.
type Sender struct {
	link  link.Link
	cfg   transport.Config
	stats *stats.Stats
	log   *slog.Logger
}

// New builds a Sender bound to a link, configuration, and stats sink.
func New(l link.Link, cfg transport.Config, st *stats.Stats, log *slog.Logger) *Sender {
	if log == nil {
		log = logger.Logger()
	}
	return &Sender{link: l, cfg: cfg, stats: st, log: log}
}

// Plan validates payload against the configured limits and computes the
// chunk count and whole-payload CRC, failing synchronously (no wire
// traffic) with PayloadTooLarge or TooManyChunks.
func (s *Sender) Plan(payload []byte) (totalChunks uint16, globalCRC32 uint32, err error) {
	if len(payload) == 0 {
		return 0, 0, protoerr.NewValidationError("sender.preflight", errEmptyPayload())
	}
	if len(payload) > s.cfg.MaxTotalDataSize {
		return 0, 0, protoerr.NewValidationError("sender.preflight", errPayloadTooLarge(len(payload), s.cfg.MaxTotalDataSize))
	}
	chunkSize := s.cfg.ChunkSize()
	total := (len(payload) + chunkSize - 1) / chunkSize
	if total > s.cfg.MaxChunksPerTransfer {
		return 0, 0, protoerr.NewValidationError("sender.preflight", errTooManyChunks(total, s.cfg.MaxChunksPerTransfer))
	}
	return uint16(total), framer.CRC32(payload), nil
}

// Run drives payload to completion: preflight, per-chunk send/ACK/retry, and
// the final whole-transfer ACK wait. acks must deliver every control-channel
// Ack the Session decodes while this Sender is active; Run never subscribes
// to the link directly. Returns the Transfer it built (for stats/logging by
// the caller) and the terminal Ack (TRANSFER_COMPLETE or TRANSFER_SUCCESS).
func (s *Sender) Run(ctx context.Context, payload []byte, acks <-chan framer.Ack, onProgress func(current, total int)) (*transport.Transfer, framer.Ack, error) {
	total, global, err := s.Plan(payload)
	if err != nil {
		return nil, framer.Ack{}, err
	}
	transfer, err := transport.NewTransfer(transport.DirectionSend, total, global, uint32(len(payload)), s.cfg)
	if err != nil {
		return nil, framer.Ack{}, err
	}

	log := logger.WithTransfer(s.log, transfer.ID.String(), "send", int(total), global)
	chunkSize := s.cfg.ChunkSize()

	for i := 1; i <= int(total); i++ {
		start := (i - 1) * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}

		buf := bufpool.Get(framer.HeaderSize + chunkSize)
		frame, err := framer.EncodeChunkInto(buf, uint16(i), total, global, uint32(len(payload)), payload[start:end], chunkSize)
		if err != nil {
			bufpool.Put(buf)
			return transfer, framer.Ack{}, err
		}

		err = s.sendChunkWithRetry(ctx, transfer, uint16(i), frame, acks, log)
		bufpool.Put(buf)
		if err != nil {
			return transfer, framer.Ack{}, err
		}

		if onProgress != nil {
			onProgress(i, int(total))
		}
		if i < int(total) {
			select {
			case <-time.After(s.cfg.InterChunkDelay):
			case <-ctx.Done():
				return transfer, framer.Ack{}, ctx.Err()
			}
		}
	}

	finalAck, err := s.awaitFinalAck(ctx, acks)
	if err != nil {
		return transfer, framer.Ack{}, err
	}
	// awaitFinalAck only returns a nil error for TRANSFER_COMPLETE or
	// TRANSFER_SUCCESS (TRANSFER_FAILED comes back as an IntegrityError). The
	// peer's Receiver emits COMPLETE first, then SUCCESS, and awaitFinalAck
	// returns on the first of the two, so a plain Send sees COMPLETE — there
	// is no separate response to wait for, so COMPLETE already means the
	// outbound transfer succeeded.
	s.stats.MarkTransferSuccess(time.Now())
	logger.Category(log, logger.CategoryTransfer).Info("send transfer finished", "final_ack", finalAck.Type.String())
	return transfer, finalAck, nil
}

// sendChunkWithRetry emits frame for chunkNum and retries (re-sending the
// identical frame) on CHUNK_ERROR or ACK timeout, up to cfg.MaxRetries total
// attempts.
func (s *Sender) sendChunkWithRetry(ctx context.Context, transfer *transport.Transfer, chunkNum uint16, frame []byte, acks <-chan framer.Ack, log *slog.Logger) error {
	chunkLog := logger.WithChunk(log, int(chunkNum), int(transfer.TotalChunks))
	for {
		attempt := transfer.RecordAttempt(chunkNum)
		if err := s.link.WriteData(ctx, frame); err != nil {
			return protoerr.NewLinkError("sender.write_data", err)
		}
		s.stats.AddDataSent(len(frame))
		logger.Category(chunkLog, logger.CategorySend).Debug("chunk sent", "attempt", attempt)

		outcome, err := s.awaitChunkAck(ctx, acks, chunkNum)
		if err != nil {
			return err
		}
		if outcome == outcomeReceived {
			logger.Category(chunkLog, logger.CategoryACK).Debug("chunk acknowledged", "attempt", attempt)
			return nil
		}

		if outcome == outcomeTimeout {
			s.stats.IncAckTimeouts()
		}
		if attempt >= s.cfg.MaxRetries {
			return protoerr.NewExhaustionError("sender.ack_wait", chunkNum, attempt)
		}
		s.stats.IncRetransmissions()
		logger.Category(chunkLog, logger.CategoryRetransmit).Warn("retransmitting chunk", "attempt", attempt, "reason", outcomeReason(outcome))
	}
}

type ackOutcome int

const (
	outcomeReceived ackOutcome = iota
	outcomeError
	outcomeTimeout
)

func outcomeReason(o ackOutcome) string {
	if o == outcomeError {
		return "chunk_error"
	}
	return "ack_timeout"
}

// awaitChunkAck blocks until an Ack naming chunkNum arrives on acks or
// cfg.AckTimeout elapses. Stray ACKs for other chunk numbers, and unrelated
// ack types, are dropped silently per the Sender's tie-break rule.
func (s *Sender) awaitChunkAck(ctx context.Context, acks <-chan framer.Ack, chunkNum uint16) (ackOutcome, error) {
	timer := time.NewTimer(s.cfg.AckTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			return outcomeTimeout, nil
		case ack, ok := <-acks:
			if !ok {
				return 0, protoerr.NewLinkError("sender.ack_wait", errAckChannelClosed())
			}
			if uint16(ack.ChunkNumber) != chunkNum {
				continue
			}
			switch ack.Type {
			case framer.AckChunkReceived:
				return outcomeReceived, nil
			case framer.AckChunkError:
				return outcomeError, nil
			default:
				continue
			}
		}
	}
}

// awaitFinalAck blocks for the whole-transfer ACK following the last chunk.
func (s *Sender) awaitFinalAck(ctx context.Context, acks <-chan framer.Ack) (framer.Ack, error) {
	timer := time.NewTimer(s.cfg.AckTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return framer.Ack{}, ctx.Err()
		case <-timer.C:
			s.stats.IncTimeouts()
			return framer.Ack{}, protoerr.NewLivenessError("sender.final_ack_wait", s.cfg.AckTimeout, errFinalAckTimeout())
		case ack, ok := <-acks:
			if !ok {
				return framer.Ack{}, protoerr.NewLinkError("sender.final_ack_wait", errAckChannelClosed())
			}
			switch ack.Type {
			case framer.AckTransferComplete, framer.AckTransferSuccess:
				return ack, nil
			case framer.AckTransferFailed:
				return framer.Ack{}, protoerr.NewIntegrityError("sender.final_ack_wait", errFinalAckFailed())
			default:
				continue
			}
		}
	}
}
