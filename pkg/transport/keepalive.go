package transport

import "time"

// Keep-alive and write constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is the default extra time allowed for the peer's
	// pong after a ping interval elapses.
	DefaultPongTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds a single websocket write.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultHandshakeTimeout bounds the websocket opening handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultSendQueueSize is the number of frames a link buffers.
	DefaultSendQueueSize = 64

	// DefaultMaxMessageSize is the default maximum inbound message size (64 KB).
	DefaultMaxMessageSize = 65536
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration

	// PongTimeout is the extra time allowed for the peer to answer.
	PongTimeout time.Duration
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval: DefaultPingInterval,
		PongTimeout:  DefaultPongTimeout,
	}
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	return c
}

// DetectionDelay is the longest a dead peer goes unnoticed.
// Calculated as: PingInterval + PongTimeout
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval + c.PongTimeout
}
