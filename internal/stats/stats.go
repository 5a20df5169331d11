// Package stats wraps the transport's eight statistics counters in a
// per-Session prometheus.Registry. Deliberately never a package-level
// global: every Session owns an independent Stats instance tied to its own
// link, so two Sessions in the same process never share counters.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is a plain-struct view of the counters for callers (CLI output,
// logging, tests) that just want the numbers without touching prometheus.
type Snapshot struct {
	TotalDataSent       uint64
	TotalDataReceived   uint64
	CRCErrors           uint64
	Timeouts            uint64
	SuccessfulTransfers uint64
	AckTimeouts         uint64
	Retransmissions     uint64
	LastTransferTime    time.Time
}

// Stats owns one prometheus.Registry exposing CounterFuncs backed by plain
// atomic counters, plus a GaugeFunc for the last-transfer time. The atomics are the source of truth (cheap, lock-free
// increments on the hot path); the registry exists purely so a caller can
// wire a /metrics handler over the same numbers a Snapshot would report.
type Stats struct {
	totalDataSent       uint64
	totalDataReceived   uint64
	crcErrors           uint64
	timeouts            uint64
	successfulTransfers uint64
	ackTimeouts         uint64
	retransmissions     uint64

	mu               sync.Mutex
	lastTransferTime time.Time
	registry         *prometheus.Registry
}

// New creates a Stats instance with its own registry.
func New() *Stats {
	s := &Stats{}
	s.registry = s.buildRegistry()
	return s
}

// Registry exposes the underlying prometheus.Registry, e.g. for an HTTP
// /metrics handler wired up by the caller.
func (s *Stats) Registry() *prometheus.Registry { return s.registry }

func (s *Stats) buildRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	counterFunc := func(name, help string, read func() float64) {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, read))
	}
	counterFunc("ble_transport_data_sent_bytes_total", "Total bytes sent across all transfers.",
		func() float64 { return float64(atomic.LoadUint64(&s.totalDataSent)) })
	counterFunc("ble_transport_data_received_bytes_total", "Total bytes received across all transfers.",
		func() float64 { return float64(atomic.LoadUint64(&s.totalDataReceived)) })
	counterFunc("ble_transport_crc_errors_total", "Chunk or whole-payload CRC mismatches.",
		func() float64 { return float64(atomic.LoadUint64(&s.crcErrors)) })
	counterFunc("ble_transport_timeouts_total", "Chunk-quiescence and final-ACK timeouts.",
		func() float64 { return float64(atomic.LoadUint64(&s.timeouts)) })
	counterFunc("ble_transport_successful_transfers_total", "Transfers that completed and verified.",
		func() float64 { return float64(atomic.LoadUint64(&s.successfulTransfers)) })
	counterFunc("ble_transport_ack_timeouts_total", "Per-chunk ACK waits that timed out.",
		func() float64 { return float64(atomic.LoadUint64(&s.ackTimeouts)) })
	counterFunc("ble_transport_retransmissions_total", "Chunk retransmissions triggered by CHUNK_ERROR or timeout.",
		func() float64 { return float64(atomic.LoadUint64(&s.retransmissions)) })
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ble_transport_last_transfer_timestamp_seconds",
		Help: "Unix time of the last successful transfer (0 if none).",
	}, func() float64 {
		s.mu.Lock()
		last := s.lastTransferTime
		s.mu.Unlock()
		if last.IsZero() {
			return 0
		}
		return float64(last.UnixNano()) / 1e9
	}))
	return reg
}

// Reset clears every counter and rebuilds the registry, mirroring the
// original client's reset_statistics(). Intended for long-lived Sessions
// reused across many logical "runs" in the same process.
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.totalDataSent, 0)
	atomic.StoreUint64(&s.totalDataReceived, 0)
	atomic.StoreUint64(&s.crcErrors, 0)
	atomic.StoreUint64(&s.timeouts, 0)
	atomic.StoreUint64(&s.successfulTransfers, 0)
	atomic.StoreUint64(&s.ackTimeouts, 0)
	atomic.StoreUint64(&s.retransmissions, 0)
	s.mu.Lock()
	s.lastTransferTime = time.Time{}
	s.mu.Unlock()
	s.registry = s.buildRegistry()
}

func (s *Stats) AddDataSent(n int)     { atomic.AddUint64(&s.totalDataSent, uint64(n)) }
func (s *Stats) AddDataReceived(n int) { atomic.AddUint64(&s.totalDataReceived, uint64(n)) }
func (s *Stats) IncCRCErrors()         { atomic.AddUint64(&s.crcErrors, 1) }
func (s *Stats) IncTimeouts()          { atomic.AddUint64(&s.timeouts, 1) }
func (s *Stats) IncAckTimeouts()       { atomic.AddUint64(&s.ackTimeouts, 1) }
func (s *Stats) IncRetransmissions()   { atomic.AddUint64(&s.retransmissions, 1) }

// MarkTransferSuccess increments the successful-transfer counter and records
// the wall-clock completion time.
func (s *Stats) MarkTransferSuccess(at time.Time) {
	atomic.AddUint64(&s.successfulTransfers, 1)
	s.mu.Lock()
	s.lastTransferTime = at
	s.mu.Unlock()
}

// Get returns a point-in-time Snapshot of every counter.
func (s *Stats) Get() Snapshot {
	s.mu.Lock()
	last := s.lastTransferTime
	s.mu.Unlock()
	return Snapshot{
		TotalDataSent:       atomic.LoadUint64(&s.totalDataSent),
		TotalDataReceived:   atomic.LoadUint64(&s.totalDataReceived),
		CRCErrors:           atomic.LoadUint64(&s.crcErrors),
		Timeouts:            atomic.LoadUint64(&s.timeouts),
		SuccessfulTransfers: atomic.LoadUint64(&s.successfulTransfers),
		AckTimeouts:         atomic.LoadUint64(&s.ackTimeouts),
		Retransmissions:     atomic.LoadUint64(&s.retransmissions),
		LastTransferTime:    last,
	}
}
