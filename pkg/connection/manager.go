package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a first connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the manager has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes the underlying link.
// It returns nil once the link is ready to carry traffic.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Backoff configures the delay between reconnection attempts.
	Backoff BackoffConfig

	// AutoReconnect retries after a lost link or a failed first attempt.
	AutoReconnect bool

	// ConnectTimeout bounds every reconnection attempt (default: 10s).
	ConnectTimeout time.Duration

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultManagerConfig returns a ManagerConfig with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Backoff:        DefaultBackoffConfig(),
		AutoReconnect:  true,
		ConnectTimeout: 10 * time.Second,
	}
}

// Manager manages the link lifecycle with automatic reconnection.
type Manager struct {
	mu sync.RWMutex

	// notifyMu is held by the goroutine currently draining transitions.
	notifyMu sync.Mutex

	// transitions queued for listener dispatch, in the order they happened.
	transitions []transition

	state          State
	backoff        *Backoff
	connectFn      ConnectFunc
	autoReconnect  bool
	connectTimeout time.Duration
	logger         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	loop   sync.Once

	reconnectCh chan struct{}

	onStateChange  listenerList[func(oldState, newState State)]
	onConnected    listenerList[func()]
	onDisconnected listenerList[func()]
	onReconnecting listenerList[func(attempt int, delay time.Duration)]
}

// NewManager creates a connection manager with default configuration.
func NewManager(connectFn ConnectFunc) *Manager {
	return NewManagerWithConfig(connectFn, DefaultManagerConfig())
}

// NewManagerWithConfig creates a connection manager.
func NewManagerWithConfig(connectFn ConnectFunc, cfg ManagerConfig) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:          StateDisconnected,
		backoff:        NewBackoffWithConfig(cfg.Backoff),
		connectFn:      connectFn,
		autoReconnect:  cfg.AutoReconnect,
		connectTimeout: cfg.ConnectTimeout,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		reconnectCh:    make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateConnected
}

// SetAutoReconnect enables or disables automatic reconnection.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// Connect makes one connection attempt.
//
// If the attempt fails and automatic reconnection is enabled, the manager
// moves to StateReconnecting and keeps retrying in the background once
// StartReconnectLoop has been called. The first error is still returned.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateClosed:
		m.mu.Unlock()
		return ErrConnectionClosed
	}
	old := m.state
	m.state = StateConnecting
	m.enqueue(old, StateConnecting)
	m.mu.Unlock()
	m.drain()

	err := m.connectFn(ctx)

	m.mu.Lock()
	if m.state != StateConnecting {
		// Closed while the attempt was in flight.
		m.mu.Unlock()
		if err == nil {
			return ErrConnectionClosed
		}
		return err
	}
	if err != nil {
		next := StateDisconnected
		if m.autoReconnect {
			next = StateReconnecting
		}
		m.state = next
		m.enqueue(StateConnecting, next)
		m.mu.Unlock()
		m.drain()

		m.logger.Debug("connect failed", "error", err, "next_state", next)
		if next == StateReconnecting {
			m.triggerReconnect()
		}
		return err
	}

	m.state = StateConnected
	m.backoff.Reset()
	m.enqueue(StateConnecting, StateConnected)
	m.mu.Unlock()
	m.drain()
	return nil
}

// NotifyConnectionLost reports that the established link went away.
// Reconnection is attempted if enabled.
func (m *Manager) NotifyConnectionLost(reason error) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	next := StateDisconnected
	if m.autoReconnect {
		next = StateReconnecting
	}
	m.state = next
	m.enqueue(StateConnected, next)
	m.mu.Unlock()
	m.drain()

	m.logger.Debug("connection lost", "reason", reason, "next_state", next)

	if next == StateReconnecting {
		m.triggerReconnect()
	}
}

// Disconnect moves a connected manager to StateDisconnected without
// scheduling a reconnection. The caller closes the link itself.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.enqueue(StateConnected, StateDisconnected)
	m.mu.Unlock()
	m.drain()
}

// StartReconnectLoop starts the background reconnection loop.
// Calling it more than once has no effect.
func (m *Manager) StartReconnectLoop() {
	m.loop.Do(func() {
		m.wg.Add(1)
		go m.reconnectLoop()
	})
}

// Close shuts down the manager and waits for the reconnection loop to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateClosed
	m.enqueue(old, StateClosed)
	m.mu.Unlock()
	m.drain()

	m.cancel()
	m.wg.Wait()
}

type transition struct {
	oldState State
	newState State
}

// enqueue records a transition for listener dispatch. Callers hold m.mu.
func (m *Manager) enqueue(oldState, newState State) {
	m.transitions = append(m.transitions, transition{oldState: oldState, newState: newState})
}

// drain notifies listeners of queued transitions in order. Callers must not
// hold m.mu. If another goroutine is already draining, it picks up the
// queued transitions, so a listener that changes state does not deadlock.
func (m *Manager) drain() {
	for {
		if !m.notifyMu.TryLock() {
			return
		}
		for {
			t, ok := m.nextTransition()
			if !ok {
				break
			}
			m.notify(t)
		}
		m.notifyMu.Unlock()

		m.mu.RLock()
		more := len(m.transitions) > 0
		m.mu.RUnlock()
		if !more {
			return
		}
	}
}

func (m *Manager) nextTransition() (transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.transitions) == 0 {
		return transition{}, false
	}
	t := m.transitions[0]
	m.transitions = m.transitions[1:]
	return t, true
}

func (m *Manager) notify(t transition) {
	m.mu.RLock()
	stateFns := m.onStateChange.snapshot()
	var edgeFns []func()
	switch {
	case t.newState == StateConnected:
		edgeFns = m.onConnected.snapshot()
	case t.oldState == StateConnected:
		edgeFns = m.onDisconnected.snapshot()
	}
	m.mu.RUnlock()

	for _, fn := range stateFns {
		fn(t.oldState, t.newState)
	}
	for _, fn := range edgeFns {
		fn()
	}
}

// triggerReconnect signals that reconnection should be attempted.
func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

// attemptReconnect retries with backoff until connected or closed.
func (m *Manager) attemptReconnect() {
	for {
		if m.State() != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		attempt := m.backoff.Attempts()

		m.mu.RLock()
		fns := m.onReconnecting.snapshot()
		m.mu.RUnlock()
		for _, fn := range fns {
			fn(attempt, delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		if m.State() != StateReconnecting {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.connectTimeout)
		err := m.connectFn(ctx)
		cancel()

		if err != nil {
			m.logger.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.state = StateConnected
		m.backoff.Reset()
		m.enqueue(StateReconnecting, StateConnected)
		m.mu.Unlock()
		m.drain()
		m.logger.Debug("reconnected", "attempt", attempt)
		return
	}
}

// OnStateChange registers a listener for every state transition.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.onStateChange.add(fn)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.onStateChange.remove(id)
	}
}

// OnConnected registers a listener for every transition into StateConnected.
func (m *Manager) OnConnected(fn func()) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.onConnected.add(fn)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.onConnected.remove(id)
	}
}

// OnDisconnected registers a listener for every transition out of StateConnected.
func (m *Manager) OnDisconnected(fn func()) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.onDisconnected.add(fn)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.onDisconnected.remove(id)
	}
}

// OnReconnecting registers a listener called before each reconnection delay.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) (remove func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.onReconnecting.add(fn)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.onReconnecting.remove(id)
	}
}

// BackoffAttempts returns the current number of reconnection attempts.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}

// listenerList keeps listeners in registration order.
type listenerList[F any] struct {
	nextID  uint64
	entries []listenerEntry[F]
}

type listenerEntry[F any] struct {
	id uint64
	fn F
}

func (l *listenerList[F]) add(fn F) uint64 {
	l.nextID++
	l.entries = append(l.entries, listenerEntry[F]{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *listenerList[F]) remove(id uint64) {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *listenerList[F]) snapshot() []F {
	out := make([]F, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.fn
	}
	return out
}
