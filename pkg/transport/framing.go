package transport

import (
	"time"

	"github.com/verdict-app/livechannels/pkg/log"
	"github.com/verdict-app/livechannels/pkg/wire"
)

// frameCapture records frames and errors of one link in the protocol log.
type frameCapture struct {
	logger log.Logger
	connID string
}

func (c frameCapture) frame(direction log.Direction, event string, size int) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryFrame,
		Frame:        &log.FrameEvent{Event: event, Size: size},
	})
}

func (c frameCapture) state(oldState, newState, reason string) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c frameCapture) failure(direction log.Direction, context string, err error) {
	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: context,
		},
	})
}

// encodeFrame builds the websocket message for a named event.
func encodeFrame(event string, payload []byte) ([]byte, error) {
	return wire.EncodeFrame(wire.Frame{Event: event, Payload: payload})
}
