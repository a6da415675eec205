package subscription

import (
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/verdict-app/livechannels/pkg/channel"
	"github.com/verdict-app/livechannels/pkg/log"
	"github.com/verdict-app/livechannels/pkg/wire"
)

// Transport is the link the coordinator sends requests over.
type Transport interface {
	// IsConnected reports whether requests can currently be sent.
	IsConnected() bool

	// Send hands a named event to the link. It does not wait for the
	// server to acknowledge it.
	Send(event string, payload []byte) error

	// OnConnected registers fn to run after every connect.
	OnConnected(fn func()) (remove func())
}

// Config configures a Coordinator.
type Config struct {
	// Codec builds request payloads (default: wire.ProtoCodec).
	Codec wire.ChannelCodec

	// SubscribeEvent is the event name of subscribe requests.
	SubscribeEvent string

	// UnsubscribeEvent is the event name of unsubscribe requests.
	UnsubscribeEvent string

	// Logger is the optional logger for operational output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives a capture event for every decision.
	// If nil, capture is disabled.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config using the protobuf codec and the standard
// event names.
func DefaultConfig() Config {
	return Config{
		Codec:            wire.ProtoCodec{},
		SubscribeEvent:   wire.EventSubscribe,
		UnsubscribeEvent: wire.EventUnsubscribe,
	}
}

// Interest is the current interest count of one channel.
type Interest struct {
	Key   channel.Key
	Count int
}

type pendingInterest struct {
	key        channel.Key
	descriptor channel.Descriptor
}

// Coordinator reference-counts channel interests and issues subscribe and
// unsubscribe requests over a Transport.
type Coordinator struct {
	mu sync.Mutex

	transport        Transport
	codec            wire.ChannelCodec
	subscribeEvent   string
	unsubscribeEvent string
	logger           *slog.Logger
	capture          log.Logger

	counts  map[channel.Key]int
	pending []pendingInterest
	closed  bool
	detach  func()
}

// NewCoordinator creates a coordinator and registers its replay routine
// with the transport.
func NewCoordinator(t Transport, cfg Config) *Coordinator {
	if cfg.Codec == nil {
		cfg.Codec = wire.ProtoCodec{}
	}
	if cfg.SubscribeEvent == "" {
		cfg.SubscribeEvent = wire.EventSubscribe
	}
	if cfg.UnsubscribeEvent == "" {
		cfg.UnsubscribeEvent = wire.EventUnsubscribe
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Coordinator{
		transport:        t,
		codec:            cfg.Codec,
		subscribeEvent:   cfg.SubscribeEvent,
		unsubscribeEvent: cfg.UnsubscribeEvent,
		logger:           logger,
		capture:          log.OrNoop(cfg.ProtocolLogger),
		counts:           make(map[channel.Key]int),
	}
	c.detach = t.OnConnected(c.replay)
	return c
}

// AddInterest registers one more consumer of the channel d, stored under
// key. The first consumer causes a subscribe request. While the link is
// down the interest is queued until the next connect.
func (c *Coordinator) AddInterest(key channel.Key, d channel.Descriptor) {
	if err := d.Validate(); err != nil {
		c.logger.Error("skipping invalid channel", "key", key.String(), "error", err)
		return
	}
	if d.Key() != key {
		c.logger.Error("skipping channel stored under another key",
			"key", key.String(), "channel", d.String())
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	if !c.transport.IsConnected() {
		c.pending = append(c.pending, pendingInterest{key: key, descriptor: d})
		c.logger.Debug("interest deferred", "key", key.String(), "pending", len(c.pending))
		c.record(log.CategoryDefer, []string{key.String()}, 0)
		return
	}

	c.addLocked(key, d)
}

// RemoveInterest drops one consumer of key. The last consumer causes an
// unsubscribe request. Removing a key with no consumers does nothing.
func (c *Coordinator) RemoveInterest(key channel.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	count := c.counts[key]
	if count <= 0 {
		return
	}
	if count > 1 {
		c.counts[key] = count - 1
		return
	}
	delete(c.counts, key)

	d, err := key.Descriptor()
	if err != nil {
		c.logger.Error("skipping unsubscribe", "key", key.String(), "error", err)
		return
	}
	if !c.transport.IsConnected() {
		// The server drops a link's subscriptions with the link.
		c.logger.Debug("link down, unsubscribe not sent", "key", key.String())
		return
	}
	c.sendLocked(c.unsubscribeEvent, log.CategoryUnsubscribe, []channel.Descriptor{d}, 0)
}

// Count returns the current interest count of key.
func (c *Coordinator) Count(key channel.Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

// Pending returns the number of interests waiting for the next connect.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Snapshot returns the active interests ordered by key.
func (c *Coordinator) Snapshot() []Interest {
	c.mu.Lock()
	out := make([]Interest, 0, len(c.counts))
	for key, count := range c.counts {
		out = append(out, Interest{Key: key, Count: count})
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b Interest) int {
		return strings.Compare(a.Key.String(), b.Key.String())
	})
	return out
}

// Close detaches the coordinator from the transport. If the link is up,
// every active channel is released with a single unsubscribe request.
// Later calls to AddInterest and RemoveInterest are ignored.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.detach != nil {
		c.detach()
	}

	if len(c.counts) > 0 && c.transport.IsConnected() {
		active := make([]channel.Descriptor, 0, len(c.counts))
		for key := range c.counts {
			d, err := key.Descriptor()
			if err != nil {
				c.logger.Error("skipping unsubscribe", "key", key.String(), "error", err)
				continue
			}
			active = append(active, d)
		}
		slices.SortFunc(active, func(a, b channel.Descriptor) int {
			return strings.Compare(a.Key().String(), b.Key().String())
		})
		if len(active) > 0 {
			c.sendLocked(c.unsubscribeEvent, log.CategoryUnsubscribe, active, 0)
		}
	}

	c.counts = make(map[channel.Key]int)
	c.pending = nil
}

// replay runs after every connect. It drains the interests queued while the
// link was down, in arrival order.
func (c *Coordinator) replay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.pending) == 0 {
		return
	}
	if !c.transport.IsConnected() {
		// Lost again before we got here; the next connect replays.
		return
	}

	batch := c.pending
	c.pending = nil

	keys := make([]string, len(batch))
	for i, p := range batch {
		keys[i] = p.key.String()
	}
	c.logger.Debug("replaying deferred interests", "count", len(batch))
	c.record(log.CategoryReplay, keys, 0)

	for _, p := range batch {
		c.addLocked(p.key, p.descriptor)
	}
}

// addLocked counts one interest on a connected link. Callers hold c.mu.
func (c *Coordinator) addLocked(key channel.Key, d channel.Descriptor) {
	count := c.counts[key]
	if count == 0 {
		c.sendLocked(c.subscribeEvent, log.CategorySubscribe, []channel.Descriptor{d}, 1)
	}
	c.counts[key] = count + 1
}

// sendLocked encodes and sends one request. Failures are logged, never
// returned. Callers hold c.mu.
func (c *Coordinator) sendLocked(event string, category log.Category, channels []channel.Descriptor, count int) {
	keys := make([]string, len(channels))
	for i, d := range channels {
		keys[i] = d.Key().String()
	}

	payload, err := c.codec.EncodeChannels(channels)
	if err != nil {
		c.logger.Warn("encode request failed", "event", event, "keys", keys, "error", err)
		c.recordError(event, err)
		return
	}

	c.record(category, keys, count)
	if err := c.transport.Send(event, payload); err != nil {
		c.logger.Warn("send request failed", "event", event, "keys", keys, "error", err)
		c.recordError(event, err)
		return
	}
	c.logger.Debug("request sent", "event", event, "keys", keys)
}

func (c *Coordinator) record(category log.Category, keys []string, count int) {
	c.capture.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerCoordinator,
		Category:  category,
		Channel: &log.ChannelEvent{
			Keys:    keys,
			Count:   count,
			Pending: len(c.pending),
		},
	})
}

func (c *Coordinator) recordError(event string, err error) {
	c.capture.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerCoordinator,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerCoordinator,
			Message: err.Error(),
			Context: event,
		},
	})
}
