package wire

import "fmt"

// Channel request event names.
const (
	EventSubscribe   = "channels:subscribe"
	EventUnsubscribe = "channels:unsubscribe"
)

// Frame is one named event on the link.
//
// CBOR encoding:
//
//	{
//	  1: event,    // text
//	  2: payload   // bytes, omitted when empty
//	}
type Frame struct {
	Event   string `cbor:"1,keyasint"`
	Payload []byte `cbor:"2,keyasint,omitempty"`
}

// EncodeFrame encodes a frame to CBOR bytes.
func EncodeFrame(f Frame) ([]byte, error) {
	if f.Event == "" {
		return nil, fmt.Errorf("%w: frame without event name", ErrMalformed)
	}
	return Marshal(f)
}

// DecodeFrame decodes CBOR bytes into a frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("%w: frame without event name", ErrMalformed)
	}
	return f, nil
}
