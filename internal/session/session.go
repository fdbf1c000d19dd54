// Package session ties login, history, the live channel and submission
// together for one signed-in user at a time.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatline/clients/go/chatline"
	"github.com/eldtechnologies/chatline/internal/events"
	"github.com/eldtechnologies/chatline/internal/feed"
	"github.com/eldtechnologies/chatline/internal/live"
	"github.com/eldtechnologies/chatline/internal/metrics"
	"github.com/eldtechnologies/chatline/internal/models"
	"github.com/eldtechnologies/chatline/internal/normalize"
)

var (
	ErrNoSession   = errors.New("not logged in")
	ErrEmptyBody   = errors.New("message body is empty")
	ErrBodyTooLong = fmt.Errorf("message body exceeds %d characters", chatline.MaxContentLength)
	// ErrSuperseded is returned by Login when a Logout or another Login
	// happened while it was in flight. Its results were discarded.
	ErrSuperseded = errors.New("login superseded")
)

// API is the set of request collaborators. *chatline.Client implements it.
type API interface {
	Register(ctx context.Context, username, password string) (*chatline.RegisterResponse, error)
	Login(ctx context.Context, username, password string) (*chatline.LoginResponse, error)
	FetchHistory(ctx context.Context, token string) ([]json.RawMessage, error)
	Submit(ctx context.Context, identity, body, token string) (*chatline.SubmitResponse, error)
}

// Channel is a live channel. *live.Manager implements it.
type Channel interface {
	Start() error
	Stop()
	State() live.State
	Subscribe(fn func(live.State)) (unsubscribe func())
}

// ChannelFactory builds the live channel for a new session.
type ChannelFactory func(cfg live.Config, n live.Normalizer, sink live.Admitter) Channel

// Session is the signed-in user. It is never persisted.
type Session struct {
	Identity        string
	Credential      string
	ChannelEndpoint string
	State           live.State
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithEndpoint sets the live channel endpoint used when the login
// response does not name one.
func WithEndpoint(endpoint string) Option {
	return func(c *Coordinator) { c.endpoint = endpoint }
}

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(floor, ceiling time.Duration) Option {
	return func(c *Coordinator) {
		c.backoffFloor = floor
		c.backoffCeiling = ceiling
	}
}

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(c *Coordinator) { c.normalizer = n }
}

// WithChannelFactory replaces the live channel constructor.
func WithChannelFactory(f ChannelFactory) Option {
	return func(c *Coordinator) { c.newChannel = f }
}

// Coordinator owns the session, the message store and the live channel.
//
// Message and state handlers must not call Login or Logout synchronously.
type Coordinator struct {
	api            API
	normalizer     *normalize.Normalizer
	store          *feed.Store
	states         *events.Broadcaster[live.State]
	logger         zerolog.Logger
	newChannel     ChannelFactory
	endpoint       string
	backoffFloor   time.Duration
	backoffCeiling time.Duration

	// gate orders store admissions against session changes. Writers
	// hold it to bump epoch; admissions hold it shared and drop anything
	// from an older epoch. Lock order is gate, then mu.
	gate  sync.RWMutex
	epoch atomic.Uint64

	mu      sync.Mutex
	session *Session
	channel Channel
	unsub   func()
}

// New creates a Coordinator with no session.
func New(api API, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:        api,
		normalizer: normalize.New(),
		store:      feed.NewStore(metrics.FeedObserver{}),
		states:     events.NewBroadcaster[live.State](),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newChannel == nil {
		logger := c.logger.With().Str("component", "live").Logger()
		c.newChannel = func(cfg live.Config, n live.Normalizer, sink live.Admitter) Channel {
			return live.NewManager(cfg, n, sink, live.WithLogger(logger))
		}
	}
	return c
}

// Register creates an account. It does not log in.
func (c *Coordinator) Register(ctx context.Context, identity, secret string) error {
	if _, err := c.api.Register(ctx, identity, secret); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	c.logger.Info().Str("identity", identity).Msg("registered")
	return nil
}

// Login authenticates, loads history once and starts the live channel.
// Any existing session is ended first. On an authentication failure no
// session is created. A failed history fetch is logged and the live
// channel still starts.
func (c *Coordinator) Login(ctx context.Context, identity, secret string) error {
	epoch := c.advance()

	resp, err := c.api.Login(ctx, identity, secret)
	if err != nil {
		c.logger.Warn().Err(err).Str("identity", identity).Msg("login failed")
		return fmt.Errorf("login: %w", err)
	}

	sess := &Session{
		Identity:        resp.Username,
		Credential:      resp.Token,
		ChannelEndpoint: resp.WSURL,
	}
	if sess.Identity == "" {
		sess.Identity = identity
	}
	if sess.ChannelEndpoint == "" {
		sess.ChannelEndpoint = c.endpoint
	}

	c.mu.Lock()
	if c.epoch.Load() != epoch {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.session = sess
	c.mu.Unlock()

	items, err := c.api.FetchHistory(ctx, sess.Credential)
	if err != nil {
		metrics.HistoryFetchFailures.Inc()
		c.logger.Warn().Err(err).Msg("history fetch failed")
	} else if !c.admitHistory(epoch, items) {
		return ErrSuperseded
	}

	ch := c.newChannel(live.Config{
		Endpoint:       sess.ChannelEndpoint,
		Identity:       sess.Identity,
		Credential:     sess.Credential,
		BackoffFloor:   c.backoffFloor,
		BackoffCeiling: c.backoffCeiling,
	}, c.normalizer, &epochSink{c: c, epoch: epoch})
	unsub := ch.Subscribe(c.states.Publish)

	c.mu.Lock()
	if c.epoch.Load() != epoch {
		c.mu.Unlock()
		unsub()
		return ErrSuperseded
	}
	c.channel = ch
	c.unsub = unsub
	c.mu.Unlock()

	if err := ch.Start(); err != nil {
		if c.epoch.Load() != epoch {
			return ErrSuperseded
		}
		return fmt.Errorf("start live channel: %w", err)
	}
	c.logger.Info().Str("identity", sess.Identity).Msg("logged in")
	return nil
}

func (c *Coordinator) admitHistory(epoch uint64, items []json.RawMessage) bool {
	msgs := make([]models.Message, 0, len(items))
	for _, item := range items {
		if m, ok := c.normalizer.Normalize(item); ok {
			msgs = append(msgs, m)
		}
	}

	c.gate.RLock()
	defer c.gate.RUnlock()
	if c.epoch.Load() != epoch {
		return false
	}
	n := c.store.BulkAdmit(msgs)
	c.logger.Debug().Int("fetched", len(items)).Int("admitted", n).Msg("history loaded")
	return true
}

// Send submits body as the signed-in user. The message is not added to
// the store here; it arrives through the live channel like any other.
func (c *Coordinator) Send(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyBody
	}
	if utf8.RuneCountInString(body) > chatline.MaxContentLength {
		return ErrBodyTooLong
	}

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	if _, err := c.api.Submit(ctx, sess.Identity, body, sess.Credential); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Logout stops the live channel, discards the session and clears the store.
func (c *Coordinator) Logout() {
	c.advance()
	c.logger.Info().Msg("logged out")
}

// advance starts a new epoch, tearing down whatever session exists.
func (c *Coordinator) advance() uint64 {
	c.gate.Lock()
	c.mu.Lock()
	epoch := c.epoch.Add(1)
	ch, unsub := c.channel, c.unsub
	c.session = nil
	c.channel = nil
	c.unsub = nil
	c.store.Reset()
	c.mu.Unlock()
	c.gate.Unlock()

	if ch != nil {
		ch.Stop()
	}
	if unsub != nil {
		unsub()
	}
	return epoch
}

// State returns the live channel state, Idle without a session.
func (c *Coordinator) State() live.State {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return live.Idle
	}
	return ch.State()
}

// Session returns a copy of the current session.
func (c *Coordinator) Session() (Session, bool) {
	c.mu.Lock()
	sess, ch := c.session, c.channel
	c.mu.Unlock()
	if sess == nil {
		return Session{}, false
	}
	out := *sess
	out.State = live.Idle
	if ch != nil {
		out.State = ch.State()
	}
	return out, true
}

// Identity returns the signed-in identity, or "" without a session.
func (c *Coordinator) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.Identity
}

// Messages iterates the admitted messages.
func (c *Coordinator) Messages() iter.Seq[models.Message] {
	return c.store.All()
}

// SubscribeMessages registers fn for each newly admitted message.
func (c *Coordinator) SubscribeMessages(fn func(models.Message)) (unsubscribe func()) {
	return c.store.Subscribe(fn)
}

// SubscribeState registers fn for live channel state changes.
func (c *Coordinator) SubscribeState(fn func(live.State)) (unsubscribe func()) {
	return c.states.Subscribe(fn)
}

// epochSink admits live messages only while their session is current.
type epochSink struct {
	c     *Coordinator
	epoch uint64
}

func (s *epochSink) Admit(m models.Message) bool {
	s.c.gate.RLock()
	defer s.c.gate.RUnlock()
	if s.c.epoch.Load() != s.epoch {
		return false
	}
	return s.c.store.Admit(m)
}
