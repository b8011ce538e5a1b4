package log

import (
	"testing"
	"time"
)

// captureLogger records events for testing
type captureLogger struct {
	events []Event
}

func (c *captureLogger) Log(event Event) {
	c.events = append(c.events, event)
}

func TestMultiLoggerCallsAll(t *testing.T) {
	first := &captureLogger{}
	second := &captureLogger{}

	multi := NewMultiLogger(first, second)

	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-fanout",
		Direction:    DirectionIn,
		Layer:        LayerMux,
		Category:     CategoryMessage,
	}

	multi.Log(event)

	// All loggers should have received the event
	for i, c := range []*captureLogger{first, second} {
		if len(c.events) != 1 {
			t.Errorf("logger %d: got %d events, want 1", i, len(c.events))
			continue
		}
		if c.events[0].ConnectionID != "conn-fanout" {
			t.Errorf("logger %d: ConnectionID = %q", i, c.events[0].ConnectionID)
		}
	}
}

func TestMultiLoggerEmptyList(t *testing.T) {
	multi := NewMultiLogger()

	// Should not panic with empty logger list
	multi.Log(Event{
		Timestamp: time.Now(),
		Direction: DirectionOut,
		Layer:     LayerPool,
		Category:  CategoryCache,
	})
}

func TestMultiLoggerInterfaceSatisfaction(t *testing.T) {
	var _ Logger = (*MultiLogger)(nil)
}
