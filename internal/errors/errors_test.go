package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"
)

// fakeTimeoutErr simulates a net.Error with Timeout semantics.
type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "fake timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func TestIsTransportErrorClassification(t *testing.T) {
	root := stdErrors.New("root")
	wrapped := fmt.Errorf("adding context: %w", root)
	le := NewLinkError("link.write_data", wrapped)
	if !IsTransportError(le) {
		t.Fatalf("expected IsTransportError=true for link error")
	}
	if !stdErrors.Is(le, root) {
		t.Fatalf("expected errors.Is to find root cause")
	}
	var typed *LinkError
	if !stdErrors.As(le, &typed) {
		t.Fatalf("expected errors.As to *LinkError")
	}
	if typed.Op != "link.write_data" {
		t.Fatalf("unexpected op: %s", typed.Op)
	}

	iErr := NewIntegrityError("receiver.crc", nil)
	if !IsTransportError(iErr) {
		t.Fatalf("expected integrity error classified as transport")
	}
	vErr := NewValidationError("sender.preflight", nil)
	if !IsTransportError(vErr) {
		t.Fatalf("expected validation error classified as transport")
	}
	bErr := NewBusyError("send")
	if !IsTransportError(bErr) {
		t.Fatalf("expected busy error classified as transport")
	}
	exErr := NewExhaustionError("sender.ack_wait", 3, 3)
	if !IsTransportError(exErr) {
		t.Fatalf("expected exhaustion error classified as transport")
	}
}

func TestIsTimeout(t *testing.T) {
	root := fakeTimeoutErr{}
	to := NewLivenessError("sender.ack_wait", 2*time.Second, root)
	if !IsTimeout(to) {
		t.Fatalf("expected LivenessError recognized")
	}
	if !IsTimeout(context.DeadlineExceeded) {
		t.Fatalf("expected context deadline recognized")
	}
	var ne error = root
	if !IsTimeout(ne) {
		t.Fatalf("expected net-like timeout recognized")
	}
}

func TestUnwrapChains(t *testing.T) {
	base := stdErrors.New("eof")
	l1 := fmt.Errorf("read: %w", base)
	l2 := NewLinkError("link.write_control", l1)
	if !stdErrors.Is(l2, base) {
		t.Fatalf("errors.Is should reach base cause")
	}
	var tm transportMarker
	if !stdErrors.As(l2, &tm) {
		t.Fatalf("expected to match transportMarker via As")
	}
}

func TestIsIntegrityAndBusy(t *testing.T) {
	ie := NewIntegrityError("receiver.global_crc", nil)
	if !IsIntegrity(ie) {
		t.Fatalf("expected IsIntegrity=true")
	}
	if IsIntegrity(NewBusyError("send")) {
		t.Fatalf("busy error should not classify as integrity")
	}
	be := NewBusyError("exchange")
	if !IsBusy(be) {
		t.Fatalf("expected IsBusy=true")
	}
}

func TestNilSafety(t *testing.T) {
	if IsTransportError(nil) {
		t.Fatalf("nil should not be transport error")
	}
	if IsTimeout(nil) {
		t.Fatalf("nil should not be timeout")
	}
	if IsIntegrity(nil) {
		t.Fatalf("nil should not be integrity")
	}
	if IsBusy(nil) {
		t.Fatalf("nil should not be busy")
	}
}

func TestConstructorStrings(t *testing.T) {
	cases := []error{
		NewValidationError("framer.encode_chunk", nil),
		NewIntegrityError("receiver.chunk_crc", nil),
		NewLinkError("link.write_data", nil),
		NewBusyError("send"),
		NewLivenessError("receiver.chunk_timeout", 15*time.Second, nil),
		NewExhaustionError("sender.ack_wait", 7, 3),
	}
	for _, err := range cases {
		if s := err.Error(); s == "" {
			t.Fatalf("empty error string for %T", err)
		}
	}
}

func TestNegativePredicates(t *testing.T) {
	if IsTransportError(stdErrors.New("plain")) {
		t.Fatalf("plain error shouldn't be transport error")
	}
	if IsTimeout(stdErrors.New("plain")) {
		t.Fatalf("plain error shouldn't be timeout")
	}
}
