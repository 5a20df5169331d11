// Package session exposes the public request/response API of the transport
// and the state machine that drives it (Idle, Sending, AwaitingResponse,
// Receiving), fed by the Link's two notification subscriptions and
// dispatching decoded frames to a Sender or a Receiver that never touch the
// Link's subscription callbacks directly. There is no single scheduler
// goroutine: the callbacks run on whatever goroutine the Link delivers on,
// and the Session serializes its state and Receiver calls with mutexes.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	protoerr "github.com/alxayo/ble-chunk-transport/internal/errors"
	"github.com/alxayo/ble-chunk-transport/internal/logger"
	"github.com/alxayo/ble-chunk-transport/internal/stats"
	"github.com/alxayo/ble-chunk-transport/internal/transport"
	"github.com/alxayo/ble-chunk-transport/internal/transport/framer"
	"github.com/alxayo/ble-chunk-transport/internal/transport/link"
	"github.com/alxayo/ble-chunk-transport/internal/transport/receiver"
	"github.com/alxayo/ble-chunk-transport/internal/transport/sender"
)

// State names a position in the Session's state machine.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingResponse
	StateReceiving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

type recvResult struct {
	payload []byte
	err     error
}

// Session serializes one send/receive/exchange operation at a time against a
// single Link, while its two subscription callbacks (invoked on whatever
// goroutine the Link delivers notifications on) keep running underneath to
// feed the active Sender's ACK channel or the Receiver's chunk processing.
// mu is what makes the Session's own state safe: every field it guards is
// read or written either from a public-method call or from a subscription
// callback, never assumed to be single-goroutine. rcvMu is separate and
// narrower: it serializes the two goroutines that call into rcv directly
// (handleData's per-frame callback and the background ticker's idle check),
// since the Receiver itself assumes a single caller.
type Session struct {
	id    string
	lnk   link.Link
	cfg   transport.Config
	stats *stats.Stats
	log   *slog.Logger

	snd *sender.Sender
	rcv *receiver.Receiver

	mu          sync.Mutex
	state       State
	sendAcks    chan framer.Ack
	pendingRecv chan recvResult
	readyRecv   *recvResult

	// rcvMu serializes every call into rcv (HandleChunk, CheckIdle, Cancel,
	// Active). The Receiver documents itself as not safe for concurrent use,
	// but it has two independent callers: handleData, invoked on whatever
	// goroutine the Link delivers each inbound frame on, and the background
	// ticker's idle check. rcvMu is what makes the Receiver's single-threaded
	// assumption actually hold; it is deliberately distinct from mu (which
	// guards the Session's own state) so a slow Receiver call never blocks an
	// unrelated state read.
	rcvMu sync.Mutex

	onPayload    func([]byte)
	onProgress   func(current, total int, dir transport.Direction)
	onConnection func(connected bool)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Session bound to l, validates cfg, wires a fresh per-Session
// Stats and Sender/Receiver pair, subscribes to l's two channels, and starts
// the background idle/connection-state ticker. The Session owns l's
// subscriptions for its whole lifetime; do not register other handlers on l.
func New(l link.Link, cfg transport.Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	log := logger.WithSession(logger.Logger(), id)
	st := stats.New()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     id,
		lnk:    l,
		cfg:    cfg,
		stats:  st,
		log:    log,
		snd:    sender.New(l, cfg, st, log),
		rcv:    receiver.New(l, cfg, st, log),
		ctx:    ctx,
		cancel: cancel,
	}
	s.rcv.SetProgressHandler(func(current, total int) {
		s.fireProgress(current, total, transport.DirectionReceive)
	})

	l.SubscribeData(s.handleData)
	l.SubscribeControl(s.handleControl)
	s.startTicker()

	logger.Category(log, logger.CategoryTransfer).Info("session started")
	return s, nil
}

// ID returns the Session's identity, used as the "session_id" log field.
func (s *Session) ID() string { return s.id }

// Stats exposes the Session's private counters (for a caller's own
// /metrics endpoint or CLI reporting).
func (s *Session) Stats() *stats.Stats { return s.stats }

// Busy reports whether a Send, Receive, or Exchange call is currently in
// flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateIdle
}

// State returns the Session's current state machine position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnPayload registers the callback invoked once per completed receive
// transfer, whether or not a Receive/Exchange call is waiting on it.
func (s *Session) OnPayload(fn func([]byte)) {
	s.mu.Lock()
	s.onPayload = fn
	s.mu.Unlock()
}

// OnProgress registers the callback invoked after every chunk sent or
// received.
func (s *Session) OnProgress(fn func(current, total int, dir transport.Direction)) {
	s.mu.Lock()
	s.onProgress = fn
	s.mu.Unlock()
}

// OnConnection registers the callback invoked whenever the underlying
// Link's IsConnected() transitions.
func (s *Session) OnConnection(fn func(connected bool)) {
	s.mu.Lock()
	s.onConnection = fn
	s.mu.Unlock()
}

// Send drives payload to the peer and waits for the whole-transfer ACK.
// Returns a BusyError if another operation is already in flight.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	acks, err := s.beginSend()
	if err != nil {
		return err
	}
	_, _, err = s.snd.Run(ctx, payload, acks, func(current, total int) {
		s.fireProgress(current, total, transport.DirectionSend)
	})
	s.endOperation()
	return err
}

// SendJSON marshals v with encoding/json and sends it as the payload.
func (s *Session) SendJSON(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return protoerr.NewValidationError("session.send_json", err)
	}
	return s.Send(ctx, b)
}

// Receive waits up to timeout (0 disables the deadline; prefer cancelling
// ctx instead) for a whole inbound payload and returns it. Returns a
// BusyError if another operation is already in flight.
func (s *Session) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	resultCh, err := s.beginReceive(StateReceiving)
	if err != nil {
		return nil, err
	}
	return s.awaitRecv(ctx, resultCh, timeout)
}

// Exchange sends request, waits for the peer's TRANSFER_COMPLETE handoff,
// then waits up to timeout for the response payload. Returns a BusyError if
// another operation is already in flight.
func (s *Session) Exchange(ctx context.Context, request []byte, timeout time.Duration) ([]byte, error) {
	acks, err := s.beginSend()
	if err != nil {
		return nil, err
	}
	_, finalAck, err := s.snd.Run(ctx, request, acks, func(current, total int) {
		s.fireProgress(current, total, transport.DirectionSend)
	})
	if err != nil {
		s.endOperation()
		return nil, err
	}
	if finalAck.Type != framer.AckTransferComplete {
		s.endOperation()
		return nil, protoerr.NewValidationError("session.exchange", errExpectedComplete(finalAck.Type))
	}

	resultCh, err := s.beginReceive(StateAwaitingResponse)
	if err != nil {
		return nil, err
	}
	return s.awaitRecv(ctx, resultCh, timeout)
}

// ExchangeJSON marshals request, runs Exchange, and unmarshals the response
// into out (skipped if out is nil).
func (s *Session) ExchangeJSON(ctx context.Context, request any, out any, timeout time.Duration) error {
	b, err := json.Marshal(request)
	if err != nil {
		return protoerr.NewValidationError("session.exchange_json", err)
	}
	resp, err := s.Exchange(ctx, b, timeout)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp, out); err != nil {
		return protoerr.NewValidationError("session.exchange_json", err)
	}
	return nil
}

// Cancel aborts whatever operation is in flight, returning the Session to
// Idle. Safe to call when nothing is in flight.
func (s *Session) Cancel() {
	s.mu.Lock()
	ch := s.pendingRecv
	s.pendingRecv = nil
	s.sendAcks = nil
	s.readyRecv = nil
	s.state = StateIdle
	s.mu.Unlock()
	if ch != nil {
		select {
		case ch <- recvResult{err: protoerr.NewValidationError("session.cancel", errCancelled())}:
		default:
		}
	}
	s.rcvMu.Lock()
	s.rcv.Cancel()
	s.rcvMu.Unlock()
}

// Close stops the background ticker and releases the Session. It does not
// close the underlying Link.
func (s *Session) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Session) beginSend() (chan framer.Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return nil, protoerr.NewBusyError("session.send")
	}
	s.state = StateSending
	ch := make(chan framer.Ack, 8)
	s.sendAcks = ch
	return ch, nil
}

func (s *Session) beginReceive(next State) (chan recvResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next == StateReceiving && s.state != StateIdle {
		return nil, protoerr.NewBusyError("session.receive")
	}
	s.state = next
	s.sendAcks = nil
	ch := make(chan recvResult, 1)
	if s.readyRecv != nil {
		// The response already completed (e.g. the peer answered before we
		// finished processing our own final ACK) — hand it over immediately
		// instead of waiting on a notification that already happened.
		ch <- *s.readyRecv
		s.readyRecv = nil
		s.state = StateIdle
	} else {
		s.pendingRecv = ch
	}
	return ch, nil
}

func (s *Session) endOperation() {
	s.mu.Lock()
	s.state = StateIdle
	s.sendAcks = nil
	s.mu.Unlock()
}

func (s *Session) awaitRecv(ctx context.Context, ch chan recvResult, timeout time.Duration) ([]byte, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case <-ctx.Done():
		s.abortPendingRecv()
		return nil, ctx.Err()
	case <-timeoutCh:
		s.abortPendingRecv()
		return nil, protoerr.NewLivenessError("session.await_response", timeout, errResponseTimeout())
	case res := <-ch:
		s.endOperation()
		if res.err != nil {
			return nil, res.err
		}
		return res.payload, nil
	}
}

func (s *Session) abortPendingRecv() {
	s.mu.Lock()
	s.pendingRecv = nil
	s.state = StateIdle
	s.mu.Unlock()
	s.rcvMu.Lock()
	s.rcv.Cancel()
	s.rcvMu.Unlock()
}

// handleData is registered with the Link as the data-channel subscriber. It
// runs on whatever goroutine the Link delivers notifications on (for
// MemoryLink, a fresh goroutine per frame), so every field it touches is
// guarded by s.mu, and every call into the Receiver is serialized against
// the background ticker's CheckIdle via s.rcvMu.
func (s *Session) handleData(frame []byte) {
	// The Receiver runs regardless of what the Sender side is doing: a
	// response's first chunks can legitimately arrive before this Session
	// has finished noticing its own outbound transfer's final ACK.
	s.rcvMu.Lock()
	outcome, err := s.rcv.HandleChunk(s.ctx, frame)
	active := s.rcv.Active()
	s.rcvMu.Unlock()

	if err != nil || outcome == nil {
		s.mu.Lock()
		if s.state == StateAwaitingResponse && active {
			s.state = StateReceiving
		}
		s.mu.Unlock()
		return
	}

	if outcome.Err == nil {
		s.mu.Lock()
		fn := s.onPayload
		s.mu.Unlock()
		if fn != nil {
			fn(outcome.Payload)
		}
	}
	s.deliverRecv(recvResult{payload: outcome.Payload, err: outcome.Err})
}

// handleControl is registered with the Link as the control-channel
// subscriber. Acks are only meaningful while a Sender is active; stray acks
// outside that window are dropped.
func (s *Session) handleControl(frame []byte) {
	ack, err := framer.DecodeAck(frame)
	if err != nil {
		return
	}
	s.mu.Lock()
	ch := s.sendAcks
	sending := s.state == StateSending
	s.mu.Unlock()
	if !sending || ch == nil {
		return
	}
	select {
	case ch <- ack:
	default:
	}
}

func (s *Session) deliverRecv(res recvResult) {
	s.mu.Lock()
	ch := s.pendingRecv
	s.pendingRecv = nil
	if ch == nil {
		// Nobody is waiting yet (e.g. a response completed before Exchange
		// got past its own final-ACK wait) — stash it for beginReceive to
		// pick up instead of dropping it on the floor.
		s.readyRecv = &res
	} else if s.state == StateReceiving || s.state == StateAwaitingResponse {
		s.state = StateIdle
	}
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- res:
	default:
	}
}

func (s *Session) fireProgress(current, total int, dir transport.Direction) {
	s.mu.Lock()
	fn := s.onProgress
	s.mu.Unlock()
	if fn != nil {
		fn(current, total, dir)
	}
}

// startTicker runs the periodic chunk-quiescence check (when ChunkTimeout is
// enabled) and polls the Link's connection state for OnConnection.
func (s *Session) startTicker() {
	period := 250 * time.Millisecond
	if s.cfg.ChunkTimeout > 0 {
		if quarter := s.cfg.ChunkTimeout / 4; quarter < period {
			period = quarter
		}
		if period < 10*time.Millisecond {
			period = 10 * time.Millisecond
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		lastConnected := s.lnk.IsConnected()
		for {
			select {
			case <-s.ctx.Done():
				return
			case now := <-ticker.C:
				if s.cfg.ChunkTimeout > 0 {
					s.rcvMu.Lock()
					outcome := s.rcv.CheckIdle(now)
					s.rcvMu.Unlock()
					if outcome != nil {
						logger.Category(s.log, logger.CategoryTimeout).Warn("receive transfer timed out waiting for next chunk")
						s.deliverRecv(recvResult{err: outcome.Err})
					}
				}
				if connected := s.lnk.IsConnected(); connected != lastConnected {
					lastConnected = connected
					s.mu.Lock()
					fn := s.onConnection
					s.mu.Unlock()
					if fn != nil {
						fn(connected)
					}
				}
			}
		}
	}()
}
