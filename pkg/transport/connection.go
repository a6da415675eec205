package transport

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/verdict-app/livechannels/pkg/log"
	"github.com/verdict-app/livechannels/pkg/wire"
)

// Transport errors.
var (
	ErrNotConnected  = errors.New("not connected")
	ErrSendQueueFull = errors.New("send queue full")
	ErrClosed        = errors.New("transport closed")
)

// linkConfig holds the per-link settings shared by client and server.
type linkConfig struct {
	keepAlive      KeepAliveConfig
	writeTimeout   time.Duration
	sendQueueSize  int
	maxMessageSize int64
}

func (c linkConfig) withDefaults() linkConfig {
	c.keepAlive = c.keepAlive.withDefaults()
	if c.writeTimeout <= 0 {
		c.writeTimeout = DefaultWriteTimeout
	}
	if c.sendQueueSize <= 0 {
		c.sendQueueSize = DefaultSendQueueSize
	}
	if c.maxMessageSize <= 0 {
		c.maxMessageSize = DefaultMaxMessageSize
	}
	return c
}

// link is one websocket connection with a read pump and a write pump.
// The write pump is the only writer of data messages.
type link struct {
	id      string
	conn    *websocket.Conn
	cfg     linkConfig
	logger  *slog.Logger
	capture frameCapture

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newLink(id string, conn *websocket.Conn, cfg linkConfig, logger *slog.Logger, capture log.Logger) *link {
	cfg = cfg.withDefaults()
	return &link{
		id:      id,
		conn:    conn,
		cfg:     cfg,
		logger:  logger.With("conn_id", id),
		capture: frameCapture{logger: log.OrNoop(capture), connID: id},
		send:    make(chan []byte, cfg.sendQueueSize),
		done:    make(chan struct{}),
	}
}

// enqueue queues an encoded frame without blocking.
func (l *link) enqueue(data []byte) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	select {
	case l.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// close stops both pumps. The write pump flushes queued frames first.
func (l *link) close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

func (l *link) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// writePump drains the send queue and pings the peer until the link closes.
// It owns closing the websocket.
func (l *link) writePump() {
	ticker := time.NewTicker(l.cfg.keepAlive.PingInterval)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case data := <-l.send:
			if err := l.write(data); err != nil {
				l.close()
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(l.cfg.writeTimeout)
			if err := l.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				l.logger.Debug("ping failed", "error", err)
				l.close()
				return
			}

		case <-l.done:
			l.flush()
			deadline := time.Now().Add(l.cfg.writeTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = l.conn.WriteControl(websocket.CloseMessage, msg, deadline)
			return
		}
	}
}

// flush writes frames that were queued before close.
func (l *link) flush() {
	for {
		select {
		case data := <-l.send:
			if err := l.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (l *link) write(data []byte) error {
	_ = l.conn.SetWriteDeadline(time.Now().Add(l.cfg.writeTimeout))
	if err := l.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		l.logger.Debug("write failed", "error", err)
		l.capture.failure(log.DirectionOut, "write", err)
		return err
	}
	return nil
}

// readPump decodes inbound frames and hands them to fn until the link
// fails. It returns the read error.
func (l *link) readPump(fn func(wire.Frame)) error {
	wait := l.cfg.keepAlive.DetectionDelay()
	l.conn.SetReadLimit(l.cfg.maxMessageSize)
	_ = l.conn.SetReadDeadline(time.Now().Add(wait))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		msgType, data, err := l.conn.ReadMessage()
		if err != nil {
			l.close()
			return err
		}
		_ = l.conn.SetReadDeadline(time.Now().Add(wait))

		if msgType != websocket.BinaryMessage {
			l.logger.Debug("ignoring non-binary message", "type", msgType)
			continue
		}

		frame, err := wire.DecodeFrame(data)
		if err != nil {
			l.logger.Warn("dropping malformed frame", "size", len(data), "error", err)
			l.capture.failure(log.DirectionIn, "decode frame", err)
			continue
		}
		l.capture.frame(log.DirectionIn, frame.Event, len(data))
		fn(frame)
	}
}

// isExpectedClose reports whether err is a normal end of the link.
func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, websocket.ErrCloseSent)
}
