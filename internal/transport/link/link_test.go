package link

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alxayo/ble-chunk-transport/internal/transport/framer"
)

func TestMemoryLinkPairDeliversData(t *testing.T) {
	a, b := NewMemoryLinkPair(185)

	var mu sync.Mutex
	var got []byte
	done := make(chan struct{})
	b.SubscribeData(func(frame []byte) {
		mu.Lock()
		got = frame
		mu.Unlock()
		close(done)
	})

	if err := a.WriteData(context.Background(), []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(got) != "hello" {
		t.Fatalf("unexpected payload: %q", got)
	}
}

func TestMemoryLinkDisconnectRejectsWrites(t *testing.T) {
	a, b := NewMemoryLinkPair(185)
	a.Disconnect()
	if a.IsConnected() || b.IsConnected() {
		t.Fatalf("expected both ends disconnected")
	}
	if err := a.WriteData(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error writing on disconnected link")
	}
}

func TestFaultyLinkDropsFirstNAcksPerChunk(t *testing.T) {
	a, b := NewMemoryLinkPair(185)
	faultyA := NewFaultyLink(a, 2)

	var mu sync.Mutex
	var received []framer.Ack
	b.SubscribeControl(func(frame []byte) {
		ack, err := framer.DecodeAck(frame)
		if err != nil {
			t.Errorf("decode ack: %v", err)
			return
		}
		mu.Lock()
		received = append(received, ack)
		mu.Unlock()
	})

	ack := framer.EncodeAck(framer.AckChunkReceived, 1, 3, 0)
	for i := 0; i < 3; i++ {
		if err := faultyA.WriteControl(context.Background(), ack); err != nil {
			t.Fatalf("write control: %v", err)
		}
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected exactly 1 delivered ack after dropping 2, got %d", len(received))
	}
}
