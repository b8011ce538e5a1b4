package log

import (
	"testing"
	"time"

	"github.com/weft-protocol/weft-go/pkg/wire"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	logger := NoopLogger{}

	// Should not panic with any event type
	event := Event{
		Timestamp:    time.Now(),
		ConnectionID: "test-conn",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
	}

	// Test with nil payloads
	logger.Log(event)

	// Test with frame payload
	event.Frame = &FrameEvent{Size: 100, Data: []byte{1, 2, 3}}
	logger.Log(event)

	// Test with message payload
	event.Frame = nil
	event.Message = &MessageEvent{Op: wire.OpRequest, RequestID: 1}
	logger.Log(event)

	// Test with state change payload
	event.Message = nil
	event.StateChange = &StateChangeEvent{Entity: StateEntityConnection, NewState: "open"}
	logger.Log(event)

	// Test with cache payload
	event.StateChange = nil
	event.Cache = &CacheEvent{Action: CacheHit, Entries: 3}
	logger.Log(event)

	// Test with error payload
	event.Cache = nil
	event.Error = &ErrorEventData{Message: "test error"}
	logger.Log(event)
}

func TestLoggerInterfaceSatisfaction(t *testing.T) {
	// Compile-time check that NoopLogger satisfies Logger interface
	var _ Logger = NoopLogger{}
}
