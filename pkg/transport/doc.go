// Package transport carries live channel events over websockets.
//
// The transport layer handles:
//   - Dialing the server and reconnecting with backoff
//   - Framing named events into websocket binary messages
//   - Keep-alive ping/pong for connection liveness
//   - Dispatching inbound events to registered handlers
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   Channel requests (protobuf)  │
//	├────────────────────────────────┤
//	│   Event frames (CBOR)          │
//	├────────────────────────────────┤
//	│   WebSocket binary messages    │
//	├────────────────────────────────┤
//	│   HTTP(S) upgrade, TCP         │
//	└────────────────────────────────┘
//
// # Sending
//
// Client.Send never blocks. Frames are queued for a write pump that owns
// the websocket writer; a full queue is reported as ErrSendQueueFull.
//
// # Keep-Alive
//
// Both ends ping every PingInterval and expect traffic from the peer
// within PingInterval + PongTimeout. A link that stays silent longer is
// treated as lost.
//
// # Server
//
// Server is a small hub for development and tests. It tracks which
// channels every connection subscribed to and pushes published events to
// them.
package transport
