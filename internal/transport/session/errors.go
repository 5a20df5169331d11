package session

import (
	"errors"
	"fmt"

	"github.com/alxayo/ble-chunk-transport/internal/transport/framer"
)

func errExpectedComplete(got framer.AckType) error {
	return fmt.Errorf("exchange expected a TRANSFER_COMPLETE handoff, peer sent %s", got)
}

func errResponseTimeout() error { return errors.New("timed out waiting for response payload") }
func errCancelled() error       { return errors.New("operation cancelled") }
