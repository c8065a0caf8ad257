package mqtt

import (
	"context"
	"fmt"
	"sync"

	coremqtt "github.com/kilianp07/smartwatt/core/mqtt"
)

// Publisher mirrors the core mqtt.Publisher interface.
type Publisher = coremqtt.Publisher

// MockPublisher records schedule messages in memory.
type MockPublisher struct {
	Messages map[string]coremqtt.ScheduleMessage
	FailIDs  map[string]bool
	mu       sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Messages: make(map[string]coremqtt.ScheduleMessage),
		FailIDs:  make(map[string]bool),
	}
}

// PublishSchedule keeps the latest message per device, mirroring a retained
// topic, or fails for devices listed in FailIDs.
func (m *MockPublisher) PublishSchedule(_ context.Context, msg coremqtt.ScheduleMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[msg.Device] {
		return fmt.Errorf("publish failed")
	}
	m.Messages[msg.Device] = msg
	return nil
}

// Get returns the retained message of device.
func (m *MockPublisher) Get(device string) (coremqtt.ScheduleMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.Messages[device]
	return msg, ok
}
