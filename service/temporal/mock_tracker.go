package temporal

import (
	"context"
	"sync"
)

// MockTracker is a mock implementation of Tracker for testing.
type MockTracker struct {
	mu       sync.Mutex
	started  map[string]TrackTransferInput // map[workflowID]input
	startErr error
}

// NewMockTracker creates a new MockTracker.
func NewMockTracker() *MockTracker {
	return &MockTracker{
		started: make(map[string]TrackTransferInput),
	}
}

// StartTransferTracking records that tracking was started.
func (m *MockTracker) StartTransferTracking(ctx context.Context, input TrackTransferInput) (string, error) {
	if m.startErr != nil {
		return "", m.startErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := TrackWorkflowID(input.Signature)
	m.started[id] = input
	return "run-" + input.Signature, nil
}

// SetStartError configures the mock to return an error on StartTransferTracking.
func (m *MockTracker) SetStartError(err error) {
	m.startErr = err
}

// Started returns the input tracking was started with for signature.
func (m *MockTracker) Started(signature string) (TrackTransferInput, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	input, ok := m.started[TrackWorkflowID(signature)]
	return input, ok
}

// Count returns how many transfers are being tracked.
func (m *MockTracker) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}
