package link

import (
	"context"
	"sync"
)

// MemoryLink is an in-process Link implementation used by tests and the demo
// command. Two MemoryLinks are joined into a pair via NewMemoryLinkPair; a
// write on one side is delivered, on its own goroutine (mimicking a real
// notification callback arriving off the caller's call stack), to the
// subscriber registered on the peer.
type MemoryLink struct {
	mtu  int
	peer *MemoryLink

	mu        sync.Mutex
	connected bool
	onData    func([]byte)
	onControl func([]byte)
}

// NewMemoryLinkPair returns two linked endpoints, each other's peer, sharing
// the given MTU. Both start connected.
func NewMemoryLinkPair(mtu int) (a, b *MemoryLink) {
	a = &MemoryLink{mtu: mtu, connected: true}
	b = &MemoryLink{mtu: mtu, connected: true}
	a.peer = b
	b.peer = a
	return a, b
}

func (l *MemoryLink) MTU() int { return l.mtu }

func (l *MemoryLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Disconnect marks both ends of the pair as unusable; subsequent writes fail.
func (l *MemoryLink) Disconnect() {
	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()
	l.peer.mu.Lock()
	l.peer.connected = false
	l.peer.mu.Unlock()
}

func (l *MemoryLink) WriteData(ctx context.Context, frame []byte) error {
	return l.deliver(ctx, frame, func(p *MemoryLink) func([]byte) { return p.onData })
}

func (l *MemoryLink) WriteControl(ctx context.Context, ack []byte) error {
	return l.deliver(ctx, ack, func(p *MemoryLink) func([]byte) { return p.onControl })
}

func (l *MemoryLink) deliver(ctx context.Context, frame []byte, pick func(*MemoryLink) func([]byte)) error {
	if !l.IsConnected() {
		return errDisconnected()
	}
	cp := append([]byte(nil), frame...)
	l.peer.mu.Lock()
	handler := pick(l.peer)
	l.peer.mu.Unlock()
	if handler == nil {
		return nil
	}
	go func() {
		select {
		case <-ctx.Done():
		default:
			handler(cp)
		}
	}()
	return nil
}

func (l *MemoryLink) SubscribeData(handler func([]byte)) {
	l.mu.Lock()
	l.onData = handler
	l.mu.Unlock()
}

func (l *MemoryLink) SubscribeControl(handler func([]byte)) {
	l.mu.Lock()
	l.onControl = handler
	l.mu.Unlock()
}

var _ Link = (*MemoryLink)(nil)
