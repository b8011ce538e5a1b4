package log

import (
	"time"

	"github.com/weft-protocol/weft-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Peer is the short form of the peer address (hex digest prefix).
	Peer string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer network address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"8,keyasint,omitempty"`  // Transport layer
	Message     *MessageEvent     `cbor:"9,keyasint,omitempty"`  // Decoded frames
	StateChange *StateChangeEvent `cbor:"10,keyasint,omitempty"` // Lifecycle
	Cache       *CacheEvent       `cbor:"11,keyasint,omitempty"` // Pool activity
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the frame codec layer.
	LayerWire Layer = 1
	// LayerMux is the request/response multiplexer.
	LayerMux Layer = 2
	// LayerPool is the connection cache.
	LayerPool Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerMux:
		return "MUX"
	case LayerPool:
		return "POOL"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol frame (request/response/notify).
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
	// CategoryCache indicates connection cache activity.
	CategoryCache Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryCache:
		return "CACHE"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including the header).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded frame at the mux layer.
type MessageEvent struct {
	// Op is the frame opcode.
	Op wire.Opcode `cbor:"1,keyasint"`

	// RequestID correlates request/response pairs (0 for notifies).
	RequestID uint64 `cbor:"2,keyasint"`

	// PayloadSize is the frame payload size in bytes.
	PayloadSize int `cbor:"3,keyasint"`

	// For responses: the decoded result status.
	Status *wire.Status `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures connection and listener lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityListener indicates a listener state change.
	StateEntityListener StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityListener:
		return "LISTENER"
	default:
		return "UNKNOWN"
	}
}

// CacheEvent captures connection cache activity.
type CacheEvent struct {
	// Action performed by the cache.
	Action CacheAction `cbor:"1,keyasint"`

	// Entries is the number of cached connections after the action.
	Entries int `cbor:"2,keyasint"`
}

// CacheAction indicates what the connection cache did.
type CacheAction uint8

const (
	// CacheHit means a live cached connection was returned.
	CacheHit CacheAction = 0
	// CacheMiss means no usable cached connection existed.
	CacheMiss CacheAction = 1
	// CacheDial means a new connection was established.
	CacheDial CacheAction = 2
	// CacheEvict means a connection was evicted to make room.
	CacheEvict CacheAction = 3
	// CacheRemove means a connection was removed explicitly or as unhealthy.
	CacheRemove CacheAction = 4
	// CacheExpire means an idle connection was closed.
	CacheExpire CacheAction = 5
)

// String returns the cache action name.
func (a CacheAction) String() string {
	switch a {
	case CacheHit:
		return "HIT"
	case CacheMiss:
		return "MISS"
	case CacheDial:
		return "DIAL"
	case CacheEvict:
		return "EVICT"
	case CacheRemove:
		return "REMOVE"
	case CacheExpire:
		return "EXPIRE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
