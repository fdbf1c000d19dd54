// Package live owns the real-time channel: it dials, reads frames into
// the feed, and reconnects with exponential backoff until stopped.
package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatline/internal/events"
	"github.com/eldtechnologies/chatline/internal/metrics"
	"github.com/eldtechnologies/chatline/internal/models"
)

var (
	ErrMissingEndpoint   = errors.New("live channel endpoint is required")
	ErrMissingCredential = errors.New("live channel credential is required")
	ErrAlreadyStarted    = errors.New("live channel already started")
	ErrStopped           = errors.New("live channel manager was stopped")
)

// Normalizer turns a decoded frame entry into a message.
type Normalizer interface {
	Normalize(v any) (models.Message, bool)
}

// Admitter receives normalized messages, typically a *feed.Store.
type Admitter interface {
	Admit(m models.Message) bool
}

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. It matches time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config holds the parameters of one channel lifetime. Identity and
// credential are attached to every dial; rotating them needs a new Manager.
type Config struct {
	Endpoint       string
	Identity       string
	Credential     string
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration
	DialTimeout    time.Duration
}

func (c Config) validate() error {
	if c.Endpoint == "" {
		return ErrMissingEndpoint
	}
	if c.Credential == "" {
		return ErrMissingCredential
	}
	return nil
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithAfterFunc replaces time.AfterFunc for reconnect scheduling.
func WithAfterFunc(f AfterFunc) Option {
	return func(m *Manager) { m.afterFunc = f }
}

// Manager drives one live channel through Idle, Connecting, Open and
// Closed until Stop. A stopped Manager cannot be restarted.
//
// State handlers run on the goroutine that caused the transition, in
// transition order. They may call State but must not call Start or Stop
// synchronously.
type Manager struct {
	cfg        Config
	dialer     Dialer
	normalizer Normalizer
	sink       Admitter
	logger     zerolog.Logger
	afterFunc  AfterFunc
	states     *events.Broadcaster[State]

	// current mirrors state for lock-free reads from handlers.
	current atomic.Int32

	mu         sync.Mutex
	emitMu     sync.Mutex
	state      State
	err        error
	stopped    bool
	backoff    *Backoff
	timer      Timer
	conn       Conn
	cancelDial context.CancelFunc
}

// NewManager creates an idle Manager that feeds normalized frames into sink.
func NewManager(cfg Config, n Normalizer, sink Admitter, opts ...Option) *Manager {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	m := &Manager{
		cfg:        cfg,
		dialer:     NewWebsocketDialer(),
		normalizer: n,
		sink:       sink,
		logger:     zerolog.Nop(),
		afterFunc:  realAfterFunc,
		states:     events.NewBroadcaster[State](),
		backoff:    NewBackoff(cfg.BackoffFloor, cfg.BackoffCeiling),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	return State(m.current.Load())
}

// Subscribe registers fn for state changes.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	return m.states.Subscribe(fn)
}

// Start begins connecting. A missing endpoint or credential moves the
// Manager to Failed and returns the configuration error; it is never retried.
func (m *Manager) Start() error {
	m.mu.Lock()
	switch {
	case m.stopped:
		m.mu.Unlock()
		return ErrStopped
	case m.state == Failed:
		err := m.err
		m.mu.Unlock()
		return err
	case m.state != Idle:
		m.mu.Unlock()
		return ErrAlreadyStarted
	}

	err := m.cfg.validate()
	if err == nil {
		_, err = BuildURL(m.cfg.Endpoint, m.cfg.Identity, m.cfg.Credential)
	}
	if err != nil {
		m.err = err
		m.logger.Error().Err(err).Msg("live channel configuration error")
		m.transitionLocked(Failed)
		return err
	}

	m.transitionLocked(Connecting)
	go m.connect()
	return nil
}

// Stop tears the channel down from any state: it cancels a pending
// reconnect or dial, closes an open connection and moves to Idle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	if m.state == Idle {
		m.mu.Unlock()
		return
	}
	m.logger.Info().Msg("live channel stopped")
	m.transitionLocked(Idle)
}

// connect performs one dial attempt and, on success, runs the read loop
// on the calling goroutine.
func (m *Manager) connect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	target, _ := BuildURL(m.cfg.Endpoint, m.cfg.Identity, m.cfg.Credential)
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	m.cancelDial = cancel
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx, target)
	cancel()

	m.mu.Lock()
	m.cancelDial = nil
	if m.stopped {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		metrics.LiveDialAttempts.WithLabelValues("error").Inc()
		m.logger.Warn().Err(err).Msg("live channel dial failed")
		m.scheduleLocked()
		m.transitionLocked(Closed)
		return
	}

	metrics.LiveDialAttempts.WithLabelValues("ok").Inc()
	m.conn = conn
	m.backoff.Reset()
	m.logger.Info().Msg("live channel connected")
	m.transitionLocked(Open)

	m.readLoop(conn)
}

// readLoop delivers frames in arrival order until the connection fails.
func (m *Manager) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			if m.stopped || m.conn != conn {
				m.mu.Unlock()
				return
			}
			m.conn = nil
			_ = conn.Close()
			m.logger.Warn().Err(err).Msg("live channel lost")
			m.scheduleLocked()
			m.transitionLocked(Closed)
			return
		}
		m.handleFrame(data)
	}
}

func (m *Manager) handleFrame(data []byte) {
	for _, entry := range ParseFrame(data) {
		msg, ok := m.normalizer.Normalize(entry)
		if !ok {
			metrics.LiveFramesDropped.Inc()
			m.logger.Debug().Int("bytes", len(data)).Msg("dropped non-message frame entry")
			continue
		}
		m.sink.Admit(msg)
	}
}

// scheduleLocked arms the reconnect timer. m.mu must be held.
func (m *Manager) scheduleLocked() {
	delay := m.backoff.Next()
	metrics.LiveReconnectDelay.Observe(delay.Seconds())
	m.logger.Debug().Dur("delay", delay).Msg("reconnect scheduled")
	m.timer = m.afterFunc(delay, m.reconnect)
}

func (m *Manager) reconnect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.transitionLocked(Connecting)
	m.connect()
}

// transitionLocked sets the state and publishes it. It must be called
// with m.mu held and returns with m.mu released. emitMu is taken before
// m.mu is released so events are published in transition order.
func (m *Manager) transitionLocked(s State) {
	m.state = s
	m.current.Store(int32(s))
	metrics.LiveState.Set(float64(s))

	m.emitMu.Lock()
	m.mu.Unlock()
	m.states.Publish(s)
	m.emitMu.Unlock()
}
