package transport

import (
	"context"
	"net/http"

	"github.com/verdict-app/livechannels/pkg/channel"
)

// EventTransport is a link that sends and receives named events.
// Implemented by Client.
type EventTransport interface {
	// Start connects and keeps the link up until Close.
	Start(ctx context.Context) error

	// Close shuts the link down.
	Close()

	// IsConnected reports whether events can currently be sent.
	IsConnected() bool

	// Send queues a named event without blocking.
	Send(event string, payload []byte) error

	// On registers a handler for inbound events.
	On(event string, h Handler) (remove func())

	// OnConnected registers a connect listener.
	OnConnected(fn func()) (remove func())

	// OnDisconnected registers a disconnect listener.
	OnDisconnected(fn func()) (remove func())
}

// Hub serves websocket clients and pushes channel events to them.
// Implemented by Server.
type Hub interface {
	http.Handler

	// Publish pushes an event to every subscriber of key.
	Publish(key channel.Key, event string, payload []byte) int

	// Subscribers returns the number of connections subscribed to key.
	Subscribers(key channel.Key) int

	// ConnectionCount returns the number of open connections.
	ConnectionCount() int

	// Close closes every connection and rejects new ones.
	Close()
}

// Compile-time interface satisfaction checks.
var (
	_ EventTransport = (*Client)(nil)
	_ Hub            = (*Server)(nil)
)
