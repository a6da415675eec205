package transport

import (
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/verdict-app/livechannels/pkg/channel"
	"github.com/verdict-app/livechannels/pkg/log"
	"github.com/verdict-app/livechannels/pkg/version"
	"github.com/verdict-app/livechannels/pkg/wire"
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Codec decodes channel requests (default: wire.ProtoCodec).
	Codec wire.ChannelCodec

	// SubscribeEvent and UnsubscribeEvent name the channel requests.
	SubscribeEvent   string
	UnsubscribeEvent string

	// KeepAlive configures pings to clients.
	KeepAlive KeepAliveConfig

	// WriteTimeout bounds a single write (default: 10s).
	WriteTimeout time.Duration

	// SendQueueSize is the number of frames buffered per connection.
	SendQueueSize int

	// CheckOrigin validates the Origin header. If nil, all origins are
	// accepted.
	CheckOrigin func(r *http.Request) bool

	// Logger is the optional logger for operational output.
	Logger *slog.Logger

	// ProtocolLogger receives frame capture events (optional).
	ProtocolLogger log.Logger

	// OnRequest is called after a subscribe or unsubscribe request has
	// been applied.
	OnRequest func(connID, event string, channels []channel.Descriptor)
}

// Server is a websocket hub that tracks channel subscriptions per
// connection and pushes published events to subscribers.
type Server struct {
	config   ServerConfig
	linkCfg  linkConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu          sync.RWMutex
	conns       map[string]*serverConn
	subscribers map[channel.Key]map[string]*serverConn
	closed      bool
}

// serverConn is one client connection and the channels it follows.
type serverConn struct {
	link *link
	keys map[channel.Key]struct{}
}

// NewServer creates a hub. Mount it on an http.ServeMux or serve it with
// httptest.
func NewServer(config ServerConfig) *Server {
	if config.Codec == nil {
		config.Codec = wire.ProtoCodec{}
	}
	if config.SubscribeEvent == "" {
		config.SubscribeEvent = wire.EventSubscribe
	}
	if config.UnsubscribeEvent == "" {
		config.UnsubscribeEvent = wire.EventUnsubscribe
	}
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Server{
		config: config,
		linkCfg: linkConfig{
			keepAlive:     config.KeepAlive,
			writeTimeout:  config.WriteTimeout,
			sendQueueSize: config.SendQueueSize,
		}.withDefaults(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: DefaultHandshakeTimeout,
			CheckOrigin:      checkOrigin,
			Subprotocols:     version.SupportedSubprotocols(),
		},
		logger:      logger,
		conns:       make(map[string]*serverConn),
		subscribers: make(map[channel.Key]map[string]*serverConn),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sc := &serverConn{
		link: newLink(uuid.NewString(), conn, s.linkCfg, s.logger, s.config.ProtocolLogger),
		keys: make(map[channel.Key]struct{}),
	}
	id := sc.link.id

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns[id] = sc
	s.mu.Unlock()

	s.logger.Info("client connected", "conn_id", id, "remote", r.RemoteAddr)
	sc.link.capture.state("", "CONNECTED", r.RemoteAddr)

	go sc.link.writePump()
	err = sc.link.readPump(func(f wire.Frame) { s.handleFrame(sc, f) })

	s.forget(sc)
	reason := ""
	if err != nil && !isExpectedClose(err) {
		reason = err.Error()
	}
	s.logger.Info("client disconnected", "conn_id", id, "reason", reason)
	sc.link.capture.state("CONNECTED", "DISCONNECTED", reason)
}

// Publish pushes an event to every connection subscribed to key and
// returns how many connections it was queued for.
func (s *Server) Publish(key channel.Key, event string, payload []byte) int {
	data, err := encodeFrame(event, payload)
	if err != nil {
		s.logger.Warn("encode publish frame failed", "event", event, "error", err)
		return 0
	}

	s.mu.RLock()
	targets := make([]*serverConn, 0, len(s.subscribers[key]))
	for _, sc := range s.subscribers[key] {
		targets = append(targets, sc)
	}
	s.mu.RUnlock()

	sent := 0
	for _, sc := range targets {
		if err := sc.link.enqueue(data); err != nil {
			s.logger.Warn("publish dropped", "conn_id", sc.link.id, "key", key.String(), "error", err)
			continue
		}
		sc.link.capture.frame(log.DirectionOut, event, len(data))
		sent++
	}
	return sent
}

// Subscribers returns the number of connections subscribed to key.
func (s *Server) Subscribers(key channel.Key) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[key])
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// CloseConnections closes every open connection but keeps accepting new ones.
func (s *Server) CloseConnections() {
	s.mu.RLock()
	links := make([]*link, 0, len(s.conns))
	for _, sc := range s.conns {
		links = append(links, sc.link)
	}
	s.mu.RUnlock()

	for _, l := range links {
		l.close()
	}
}

// Close closes every connection and rejects new ones.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.CloseConnections()
}

func (s *Server) handleFrame(sc *serverConn, f wire.Frame) {
	var subscribe bool
	switch f.Event {
	case s.config.SubscribeEvent:
		subscribe = true
	case s.config.UnsubscribeEvent:
	default:
		s.logger.Debug("ignoring event", "conn_id", sc.link.id, "event", f.Event)
		return
	}

	channels, err := s.config.Codec.DecodeChannels(f.Payload)
	if err != nil {
		s.logger.Warn("dropping malformed request", "conn_id", sc.link.id, "event", f.Event, "error", err)
		sc.link.capture.failure(log.DirectionIn, f.Event, err)
		return
	}

	s.mu.Lock()
	for _, d := range channels {
		key := d.Key()
		if subscribe {
			sc.keys[key] = struct{}{}
			subs := s.subscribers[key]
			if subs == nil {
				subs = make(map[string]*serverConn)
				s.subscribers[key] = subs
			}
			subs[sc.link.id] = sc
			continue
		}
		delete(sc.keys, key)
		s.unsubscribeLocked(key, sc.link.id)
	}
	s.mu.Unlock()

	s.logger.Debug("channel request", "conn_id", sc.link.id, "event", f.Event, "channels", len(channels))
	if s.config.OnRequest != nil {
		s.config.OnRequest(sc.link.id, f.Event, channels)
	}
}

// forget drops a closed connection and its subscriptions.
func (s *Server) forget(sc *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, sc.link.id)
	for key := range sc.keys {
		s.unsubscribeLocked(key, sc.link.id)
	}
	sc.keys = nil
}

func (s *Server) unsubscribeLocked(key channel.Key, connID string) {
	subs := s.subscribers[key]
	delete(subs, connID)
	if len(subs) == 0 {
		delete(s.subscribers, key)
	}
}
