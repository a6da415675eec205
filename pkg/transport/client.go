package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/verdict-app/livechannels/pkg/connection"
	"github.com/verdict-app/livechannels/pkg/log"
	"github.com/verdict-app/livechannels/pkg/version"
	"github.com/verdict-app/livechannels/pkg/wire"
)

// Handler receives the payload of an inbound event.
type Handler func(payload []byte)

// ClientConfig configures a websocket Client.
type ClientConfig struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string

	// Header is sent with every opening handshake. Authentication headers
	// are passed through unchanged.
	Header http.Header

	// HandshakeTimeout bounds the opening handshake (default: 10s).
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single write (default: 10s).
	WriteTimeout time.Duration

	// PingInterval is the interval between pings (default: 30s).
	PingInterval time.Duration

	// PongTimeout is the extra time allowed for a pong (default: 10s).
	PongTimeout time.Duration

	// SendQueueSize is the number of frames buffered per link (default: 64).
	SendQueueSize int

	// MaxMessageSize is the maximum inbound message size (default: 64KB).
	MaxMessageSize int64

	// Backoff configures the delay between reconnection attempts.
	Backoff connection.BackoffConfig

	// Logger is the optional logger for operational output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives frame and state capture events (optional).
	ProtocolLogger log.Logger
}

// DefaultClientConfig returns a ClientConfig for url with default settings.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:              url,
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		PingInterval:     DefaultPingInterval,
		PongTimeout:      DefaultPongTimeout,
		SendQueueSize:    DefaultSendQueueSize,
		MaxMessageSize:   DefaultMaxMessageSize,
		Backoff:          connection.DefaultBackoffConfig(),
	}
}

// Client is a websocket link to the live update server. It reconnects
// automatically after the link is lost.
type Client struct {
	config  ClientConfig
	linkCfg linkConfig
	dialer  *websocket.Dialer
	manager *connection.Manager
	logger  *slog.Logger
	capture log.Logger

	mu       sync.RWMutex
	link     *link
	closed   bool
	handlers map[string][]handlerEntry
	nextID   uint64
}

type handlerEntry struct {
	id uint64
	fn Handler
}

// NewClient creates a client. It does not connect until Start is called.
func NewClient(config ClientConfig) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		config: config,
		linkCfg: linkConfig{
			keepAlive: KeepAliveConfig{
				PingInterval: config.PingInterval,
				PongTimeout:  config.PongTimeout,
			},
			writeTimeout:   config.WriteTimeout,
			sendQueueSize:  config.SendQueueSize,
			maxMessageSize: config.MaxMessageSize,
		}.withDefaults(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			Subprotocols:     version.SupportedSubprotocols(),
		},
		logger:   logger,
		capture:  log.OrNoop(config.ProtocolLogger),
		handlers: make(map[string][]handlerEntry),
	}

	c.manager = connection.NewManagerWithConfig(c.dial, connection.ManagerConfig{
		Backoff:        config.Backoff,
		AutoReconnect:  true,
		ConnectTimeout: config.HandshakeTimeout,
		Logger:         logger,
	})
	// Registered first so pumps run before any other connect listener.
	c.manager.OnConnected(c.startReading)
	c.manager.OnStateChange(c.logStateChange)
	c.manager.OnReconnecting(func(attempt int, delay time.Duration) {
		c.logger.Info("reconnecting", "attempt", attempt, "delay", delay)
	})

	return c, nil
}

// Start connects to the server and keeps the link up in the background.
// A failed first attempt is returned but retried with backoff.
func (c *Client) Start(ctx context.Context) error {
	c.manager.StartReconnectLoop()
	return c.manager.Connect(ctx)
}

// Close shuts the link down. Frames queued before Close are flushed.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	l := c.link
	c.link = nil
	c.mu.Unlock()

	c.manager.Close()
	if l != nil {
		l.close()
	}
}

// IsConnected reports whether frames can currently be sent.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	l := c.link
	c.mu.RUnlock()
	return l != nil && !l.closed() && c.manager.IsConnected()
}

// State returns the connection manager state.
func (c *Client) State() connection.State {
	return c.manager.State()
}

// ConnectionID returns the ID of the current link, or "" while disconnected.
func (c *Client) ConnectionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.link == nil {
		return ""
	}
	return c.link.id
}

// Send queues a named event for the server without blocking.
func (c *Client) Send(event string, payload []byte) error {
	c.mu.RLock()
	l := c.link
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if l == nil || !c.manager.IsConnected() {
		return ErrNotConnected
	}

	data, err := encodeFrame(event, payload)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := l.enqueue(data); err != nil {
		if errors.Is(err, ErrClosed) {
			return ErrNotConnected
		}
		return err
	}
	l.capture.frame(log.DirectionOut, event, len(data))
	return nil
}

// On registers h for inbound events named event. Handlers run on the read
// goroutine in registration order.
func (c *Client) On(event string, h Handler) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: id, fn: h})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entries := c.handlers[event]
		for i, e := range entries {
			if e.id == id {
				c.handlers[event] = append(entries[:i:i], entries[i+1:]...)
				break
			}
		}
		if len(c.handlers[event]) == 0 {
			delete(c.handlers, event)
		}
	}
}

// OnConnected registers fn to run after every connect.
func (c *Client) OnConnected(fn func()) (remove func()) {
	return c.manager.OnConnected(fn)
}

// OnDisconnected registers fn to run after the link is lost or closed.
func (c *Client) OnDisconnected(fn func()) (remove func()) {
	return c.manager.OnDisconnected(fn)
}

// dial is the connection manager's ConnectFunc.
func (c *Client) dial(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, c.config.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", c.config.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", c.config.URL, err)
	}
	if err := version.CheckSubprotocol(conn.Subprotocol()); err != nil {
		conn.Close()
		return fmt.Errorf("dial %s: %w", c.config.URL, err)
	}

	l := newLink(uuid.NewString(), conn, c.linkCfg, c.logger, c.capture)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.link = l
	c.mu.Unlock()

	go l.writePump()
	c.logger.Debug("link established", "conn_id", l.id, "url", c.config.URL)
	return nil
}

// startReading runs once the manager reports connected, so a read failure
// is always reported against the connected state.
func (c *Client) startReading() {
	c.mu.RLock()
	l := c.link
	c.mu.RUnlock()
	if l == nil {
		return
	}
	go c.readLoop(l)
}

func (c *Client) readLoop(l *link) {
	err := l.readPump(c.dispatch)

	c.mu.Lock()
	if c.link == l {
		c.link = nil
	}
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	if isExpectedClose(err) {
		c.logger.Info("server closed the link", "conn_id", l.id)
	} else {
		c.logger.Warn("link lost", "conn_id", l.id, "error", err)
		l.capture.failure(log.DirectionIn, "read", err)
	}
	c.manager.NotifyConnectionLost(err)
}

func (c *Client) dispatch(f wire.Frame) {
	c.mu.RLock()
	entries := c.handlers[f.Event]
	fns := make([]Handler, len(entries))
	for i, e := range entries {
		fns[i] = e.fn
	}
	c.mu.RUnlock()

	if len(fns) == 0 {
		c.logger.Debug("no handler for event", "event", f.Event)
		return
	}
	for _, fn := range fns {
		fn(f.Payload)
	}
}

func (c *Client) logStateChange(oldState, newState connection.State) {
	c.logger.Debug("link state", "old", oldState.String(), "new", newState.String())

	frameCapture{logger: c.capture, connID: c.ConnectionID()}.state(oldState.String(), newState.String(), "")
}
