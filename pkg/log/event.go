package log

import (
	"fmt"
	"strings"
	"time"
)

// Event represents a protocol log event captured by the transport or the
// subscription coordinator. CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the link the event belongs to (UUID).
	// Empty for coordinator events raised while disconnected.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Type-specific payload (one of these will be set).
	Channel     *ChannelEvent     `cbor:"6,keyasint,omitempty"` // Coordinator decisions
	Frame       *FrameEvent       `cbor:"7,keyasint,omitempty"` // Transport frames
	StateChange *StateChangeEvent `cbor:"8,keyasint,omitempty"` // Link state
	Error       *ErrorEventData   `cbor:"9,keyasint,omitempty"` // Errors at any layer
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

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the websocket link.
	LayerTransport Layer = 0
	// LayerCoordinator is the subscription coordinator.
	LayerCoordinator Layer = 1
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerCoordinator:
		return "COORDINATOR"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame is a frame sent or received on the link.
	CategoryFrame Category = 0
	// CategorySubscribe is a subscribe request issued by the coordinator.
	CategorySubscribe Category = 1
	// CategoryUnsubscribe is an unsubscribe request issued by the coordinator.
	CategoryUnsubscribe Category = 2
	// CategoryDefer is an interest queued while the link was down.
	CategoryDefer Category = 3
	// CategoryReplay is a pass over deferred interests after connecting.
	CategoryReplay Category = 4
	// CategoryState is a link state change.
	CategoryState Category = 5
	// CategoryError is an error event.
	CategoryError Category = 6
)

var categoryNames = map[Category]string{
	CategoryFrame:       "FRAME",
	CategorySubscribe:   "SUBSCRIBE",
	CategoryUnsubscribe: "UNSUBSCRIBE",
	CategoryDefer:       "DEFER",
	CategoryReplay:      "REPLAY",
	CategoryState:       "STATE",
	CategoryError:       "ERROR",
}

// String returns the category name.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseCategory parses a category name, ignoring case.
func ParseCategory(s string) (Category, error) {
	upper := strings.ToUpper(s)
	for c, name := range categoryNames {
		if name == upper {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category: %q", s)
}

// ChannelEvent captures a coordinator decision about one or more channels.
type ChannelEvent struct {
	// Keys are the affected resource keys in their string form.
	Keys []string `cbor:"1,keyasint"`

	// Count is the interest count of a single key after the decision.
	Count int `cbor:"2,keyasint,omitempty"`

	// Pending is the number of deferred interests after the decision.
	Pending int `cbor:"3,keyasint,omitempty"`
}

// FrameEvent captures a frame at the transport layer.
type FrameEvent struct {
	// Event is the frame's event name.
	Event string `cbor:"1,keyasint"`

	// Size is the encoded frame size in bytes.
	Size int `cbor:"2,keyasint"`
}

// StateChangeEvent captures link lifecycle events.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
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
