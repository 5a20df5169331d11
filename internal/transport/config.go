// Package transport hosts the Config shared by Sender, Receiver, and Session,
// plus the Transfer entity they all operate on.
package transport

import (
	"time"

	protoerr "github.com/alxayo/ble-chunk-transport/internal/errors"
	"github.com/alxayo/ble-chunk-transport/internal/transport/framer"
)

// Config enumerates the seven tunable parameters of the transport.
// DefaultConfig returns a Config with every field set; callers who construct
// a Config literal and skip DefaultConfig should call Validate before use.
type Config struct {
	// AckTimeout is the per-chunk ACK wait before retransmit.
	AckTimeout time.Duration
	// ChunkTimeout is the receive-side inter-chunk quiescence before cancel.
	// A value <= 0 disables the quiescence timeout entirely.
	ChunkTimeout time.Duration
	// MaxRetries is the number of attempts per chunk before AckExhausted.
	MaxRetries int
	// InterChunkDelay paces outbound chunk emission.
	InterChunkDelay time.Duration
	// MTU is the base frame budget; CHUNK_SIZE = MTU - HeaderSize.
	MTU int
	// MaxTotalDataSize hard-caps a single transfer's payload.
	MaxTotalDataSize int
	// MaxChunksPerTransfer hard-caps chunk count.
	MaxChunksPerTransfer int
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		AckTimeout:           2 * time.Second,
		ChunkTimeout:         15 * time.Second,
		MaxRetries:           3,
		InterChunkDelay:      10 * time.Millisecond,
		MTU:                  framer.DefaultMTU,
		MaxTotalDataSize:     framer.MaxTotalDataSize,
		MaxChunksPerTransfer: framer.MaxChunksPerTransfer,
	}
}

// ChunkSize returns CHUNK_SIZE for this config's MTU.
func (c Config) ChunkSize() int { return framer.ChunkSize(c.MTU) }

// Validate rejects nonsensical configurations before a Session is built from them.
func (c Config) Validate() error {
	if c.MTU <= framer.HeaderSize {
		return protoerr.NewValidationError("config.validate", errMTUTooSmall(c.MTU))
	}
	if c.MaxRetries < 1 {
		return protoerr.NewValidationError("config.validate", errMaxRetries(c.MaxRetries))
	}
	if c.AckTimeout <= 0 {
		return protoerr.NewValidationError("config.validate", errNonPositiveDuration("ack_timeout"))
	}
	if c.MaxTotalDataSize <= 0 || c.MaxTotalDataSize > framer.MaxTotalDataSize {
		return protoerr.NewValidationError("config.validate", errMaxTotalDataSize(c.MaxTotalDataSize))
	}
	if c.MaxChunksPerTransfer <= 0 || c.MaxChunksPerTransfer > framer.MaxChunksPerTransfer {
		return protoerr.NewValidationError("config.validate", errMaxChunksPerTransfer(c.MaxChunksPerTransfer))
	}
	return nil
}
