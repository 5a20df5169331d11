package sender

import (
	"errors"
	"fmt"
)

func errEmptyPayload() error { return errors.New("payload must be non-empty") }

func errPayloadTooLarge(got, max int) error {
	return fmt.Errorf("payload too large: %d bytes exceeds limit %d", got, max)
}

func errTooManyChunks(got, max int) error {
	return fmt.Errorf("too many chunks: %d exceeds limit %d", got, max)
}

func errAckChannelClosed() error { return errors.New("ack channel closed") }
func errFinalAckTimeout() error  { return errors.New("timed out waiting for whole-transfer ack") }
func errFinalAckFailed() error   { return errors.New("peer reported TRANSFER_FAILED") }
