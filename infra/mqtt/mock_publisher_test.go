package mqtt

import (
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/thermompc/core/actuation"
	coremqtt "github.com/kilianp07/thermompc/core/mqtt"
)

// MockPublisher records actions in memory and acknowledges them at once.
type MockPublisher struct {
	Actions []actuation.Action
	// Fail makes SendAction return an error.
	Fail bool
	// Nack makes WaitForAck report a rejected command.
	Nack bool
	mu   sync.Mutex
	sent map[string]bool
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{sent: make(map[string]bool)}
}

// SendAction records the action or returns an error if configured to fail.
func (m *MockPublisher) SendAction(a actuation.Action) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return "", fmt.Errorf("publish failed")
	}
	m.Actions = append(m.Actions, a.Clone())
	id := fmt.Sprintf("cmd-%d", len(m.Actions))
	m.sent[id] = true
	return id, nil
}

// WaitForAck answers immediately.
func (m *MockPublisher) WaitForAck(commandID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.sent[commandID] {
		return false, coremqtt.ErrUnknownCommand
	}
	return !m.Nack, nil
}
