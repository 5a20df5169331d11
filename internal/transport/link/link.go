// Package link defines the external collaborator contract the transport
// talks to: two fire-and-forget write sinks and two subscription-based
// notification sources, modelling a two-channel BLE-style link without
// depending on any concrete BLE/GATT library.
package link

import "context"

// Link is the contract the transport core requires of its peer connection.
// Device scan, GATT discovery, MTU negotiation handshakes, and reconnect
// policy all live outside this interface; an implementation only has to
// expose the negotiated MTU and the four data-plane primitives below.
type Link interface {
	// MTU returns the current negotiated MTU in bytes.
	MTU() int
	// WriteData fire-and-forgets a chunk frame on the data channel.
	WriteData(ctx context.Context, frame []byte) error
	// WriteControl fire-and-forgets an ACK message on the control channel.
	WriteControl(ctx context.Context, ack []byte) error
	// SubscribeData registers a callback invoked for every inbound data-channel
	// frame, on whatever goroutine the implementation delivers it on; the
	// callback serializes its own access to transport state.
	SubscribeData(handler func([]byte))
	// SubscribeControl registers a callback invoked for every inbound
	// control-channel frame.
	SubscribeControl(handler func([]byte))
	// IsConnected reports whether the underlying link is currently usable.
	IsConnected() bool
}
