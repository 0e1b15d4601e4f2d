package audit

import (
	"context"
	"sync"
)

// MemoryLogger keeps events in memory
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryLogger creates an empty in-memory audit logger
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// Log appends the event
func (m *MemoryLogger) Log(ctx context.Context, event *Event) error {
	event = Prepare(ctx, event)
	m.mu.Lock()
	m.events = append(m.events, *event)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events
func (m *MemoryLogger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfType returns the recorded events with the given type
func (m *MemoryLogger) OfType(t EventType) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// Close is a no-op
func (m *MemoryLogger) Close() error {
	return nil
}
