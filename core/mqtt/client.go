package mqtt

import (
	"time"

	"github.com/kilianp07/thermompc/core/actuation"
)

// Client publishes plant commands and tracks their acknowledgments.
type Client interface {
	// SendAction publishes the action and returns the command identifier
	// used to track the acknowledgment.
	SendAction(a actuation.Action) (commandID string, err error)

	// WaitForAck waits for an acknowledgment for the provided command
	// identifier or until the timeout expires.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)
}
