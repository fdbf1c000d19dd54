package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/eldtechnologies/chatline/clients/go/chatline"
	"github.com/eldtechnologies/chatline/internal/events"
	"github.com/eldtechnologies/chatline/internal/live"
	"github.com/eldtechnologies/chatline/internal/models"
)

type submitCall struct {
	identity, body, token string
}

type fakeAPI struct {
	mu       sync.Mutex
	loginErr error
	login    *chatline.LoginResponse
	history  []json.RawMessage
	histErr  error
	submits  []submitCall

	// histGate, when set, blocks FetchHistory until closed.
	histGate chan struct{}
	histHit  chan struct{}
}

func (f *fakeAPI) Register(ctx context.Context, username, password string) (*chatline.RegisterResponse, error) {
	return &chatline.RegisterResponse{OK: true, Username: username}, nil
}

func (f *fakeAPI) Login(ctx context.Context, username, password string) (*chatline.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.login, nil
}

func (f *fakeAPI) FetchHistory(ctx context.Context, token string) ([]json.RawMessage, error) {
	if f.histHit != nil {
		close(f.histHit)
	}
	if f.histGate != nil {
		<-f.histGate
	}
	return f.history, f.histErr
}

func (f *fakeAPI) Submit(ctx context.Context, identity, body, token string) (*chatline.SubmitResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, submitCall{identity, body, token})
	return &chatline.SubmitResponse{}, nil
}

type fakeChannel struct {
	cfg     live.Config
	sink    live.Admitter
	states  *events.Broadcaster[live.State]
	mu      sync.Mutex
	state   live.State
	started int
	stopped int
}

func (f *fakeChannel) Start() error {
	f.mu.Lock()
	f.started++
	f.state = live.Connecting
	f.mu.Unlock()
	f.states.Publish(live.Connecting)
	return nil
}

func (f *fakeChannel) Stop() {
	f.mu.Lock()
	f.stopped++
	f.state = live.Idle
	f.mu.Unlock()
	f.states.Publish(live.Idle)
}

func (f *fakeChannel) State() live.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) Subscribe(fn func(live.State)) func() {
	return f.states.Subscribe(fn)
}

type channelRecorder struct {
	mu       sync.Mutex
	channels []*fakeChannel
}

func (r *channelRecorder) factory(cfg live.Config, n live.Normalizer, sink live.Admitter) Channel {
	ch := &fakeChannel{cfg: cfg, sink: sink, states: events.NewBroadcaster[live.State]()}
	r.mu.Lock()
	r.channels = append(r.channels, ch)
	r.mu.Unlock()
	return ch
}

func (r *channelRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

func (r *channelRecorder) last() *fakeChannel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channels[len(r.channels)-1]
}

func okLogin() *chatline.LoginResponse {
	return &chatline.LoginResponse{OK: true, Username: "alice", Token: "tok", WSURL: "wss://chat.test/ws"}
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func newTestCoordinator(api *fakeAPI) (*Coordinator, *channelRecorder) {
	rec := &channelRecorder{}
	return New(api, WithChannelFactory(rec.factory)), rec
}

func collect(c *Coordinator) []models.Message {
	var out []models.Message
	for m := range c.Messages() {
		out = append(out, m)
	}
	return out
}

func TestLoginLoadsHistoryThenStartsChannel(t *testing.T) {
	api := &fakeAPI{
		login: okLogin(),
		history: []json.RawMessage{
			raw(`{"messageId":"c","senderId":"bob","content":"third","createdAt":"2024-01-01T00:00:03Z"}`),
			raw(`{"messageId":"a","senderId":"bob","content":"first","createdAt":"2024-01-01T00:00:01Z"}`),
			raw(`42`),
			raw(`{"messageId":"b","senderId":"carol","content":"second","createdAt":"2024-01-01T00:00:02Z"}`),
		},
	}
	c, rec := newTestCoordinator(api)
	var states []live.State
	c.SubscribeState(func(s live.State) { states = append(states, s) })

	if err := c.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatal(err)
	}

	got := collect(c)
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, id := range []string{"a", "b", "c"} {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}

	if rec.count() != 1 {
		t.Fatalf("expected one channel, got %d", rec.count())
	}
	ch := rec.last()
	if ch.started != 1 {
		t.Fatal("expected the channel to be started")
	}
	want := live.Config{Endpoint: "wss://chat.test/ws", Identity: "alice", Credential: "tok"}
	if ch.cfg != want {
		t.Fatalf("unexpected channel config %+v", ch.cfg)
	}
	if len(states) != 1 || states[0] != live.Connecting {
		t.Fatalf("expected forwarded Connecting state, got %v", states)
	}
	if c.Identity() != "alice" {
		t.Fatalf("expected identity alice, got %q", c.Identity())
	}
	sess, ok := c.Session()
	if !ok || sess.State != live.Connecting || sess.Credential != "tok" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestLoginFailureCreatesNoSession(t *testing.T) {
	api := &fakeAPI{loginErr: &chatline.APIError{Status: http.StatusUnauthorized, Message: "invalid username or password"}}
	c, rec := newTestCoordinator(api)

	err := c.Login(context.Background(), "alice", "bad")
	var apiErr *chatline.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if rec.count() != 0 {
		t.Fatal("a failed login must not create a channel")
	}
	if _, ok := c.Session(); ok {
		t.Fatal("a failed login must not create a session")
	}
	if c.State() != live.Idle {
		t.Fatalf("expected Idle, got %s", c.State())
	}
}

func TestLogoutDuringHistoryDiscardsResult(t *testing.T) {
	api := &fakeAPI{
		login:    okLogin(),
		history:  []json.RawMessage{raw(`{"messageId":"a","content":"stale"}`)},
		histGate: make(chan struct{}),
		histHit:  make(chan struct{}),
	}
	c, rec := newTestCoordinator(api)

	done := make(chan error, 1)
	go func() { done <- c.Login(context.Background(), "alice", "pw") }()

	<-api.histHit
	c.Logout()
	close(api.histGate)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if n := len(collect(c)); n != 0 {
		t.Fatalf("stale history must be discarded, store has %d", n)
	}
	if rec.count() != 0 {
		t.Fatal("a superseded login must not start a channel")
	}
	if _, ok := c.Session(); ok {
		t.Fatal("expected no session after logout")
	}
}

func TestHistoryFailureStillStartsChannel(t *testing.T) {
	api := &fakeAPI{login: okLogin(), histErr: &chatline.APIError{Status: http.StatusBadGateway}}
	c, rec := newTestCoordinator(api)

	if err := c.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("history failure should not fail login: %v", err)
	}
	if rec.count() != 1 || rec.last().started != 1 {
		t.Fatal("expected the live channel to start")
	}
}

func TestSendDoesNotEchoLocally(t *testing.T) {
	api := &fakeAPI{login: okLogin()}
	c, _ := newTestCoordinator(api)
	if err := c.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatal(err)
	}

	var admitted int
	c.SubscribeMessages(func(models.Message) { admitted++ })

	if err := c.Send(context.Background(), "  hello  "); err != nil {
		t.Fatal(err)
	}
	if len(api.submits) != 1 {
		t.Fatalf("expected one submit, got %d", len(api.submits))
	}
	if got := api.submits[0]; got != (submitCall{"alice", "hello", "tok"}) {
		t.Fatalf("unexpected submit %+v", got)
	}
	if admitted != 0 || len(collect(c)) != 0 {
		t.Fatal("send must not add the message locally")
	}
}

func TestSendValidation(t *testing.T) {
	api := &fakeAPI{login: okLogin()}
	c, _ := newTestCoordinator(api)

	if err := c.Send(context.Background(), "hi"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := c.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	if err := c.Send(context.Background(), " \n\t "); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	long := strings.Repeat("é", chatline.MaxContentLength+1)
	if err := c.Send(context.Background(), long); !errors.Is(err, ErrBodyTooLong) {
		t.Fatalf("expected ErrBodyTooLong, got %v", err)
	}
	if len(api.submits) != 0 {
		t.Fatal("invalid sends must not reach the server")
	}
}

func TestLogoutStopsChannelAndDropsLateMessages(t *testing.T) {
	api := &fakeAPI{login: okLogin(), history: []json.RawMessage{raw(`{"messageId":"a","content":"x"}`)}}
	c, rec := newTestCoordinator(api)
	if err := c.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	ch := rec.last()

	if !ch.sink.Admit(models.Message{ID: "live-1", Author: "bob", Body: "hi", SentAt: 1}) {
		t.Fatal("expected live message to be admitted while logged in")
	}

	c.Logout()
	if ch.stopped != 1 {
		t.Fatal("expected the channel to be stopped")
	}
	if len(collect(c)) != 0 {
		t.Fatal("expected the store to be cleared")
	}
	if ch.sink.Admit(models.Message{ID: "live-2", Author: "bob", Body: "late", SentAt: 2}) {
		t.Fatal("messages from a stopped session must be dropped")
	}
	if c.State() != live.Idle || c.Identity() != "" {
		t.Fatal("expected no session after logout")
	}
}

func TestLoginReplacesPreviousSession(t *testing.T) {
	api := &fakeAPI{login: okLogin()}
	c, rec := newTestCoordinator(api)

	if err := c.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	first := rec.last()
	if err := c.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	if first.stopped != 1 {
		t.Fatal("expected the previous channel to be stopped")
	}
	if rec.count() != 2 || rec.last().started != 1 {
		t.Fatal("expected a fresh channel for the new session")
	}
}

func TestMissingEndpointFailsChannel(t *testing.T) {
	api := &fakeAPI{login: &chatline.LoginResponse{OK: true, Username: "alice", Token: "tok"}}
	c := New(api)
	defer c.Logout()

	err := c.Login(context.Background(), "alice", "pw")
	if !errors.Is(err, live.ErrMissingEndpoint) {
		t.Fatalf("expected ErrMissingEndpoint, got %v", err)
	}
	if c.State() != live.Failed {
		t.Fatalf("expected Failed, got %s", c.State())
	}
}

func TestEndpointFallback(t *testing.T) {
	api := &fakeAPI{login: &chatline.LoginResponse{OK: true, Username: "alice", Token: "tok"}}
	rec := &channelRecorder{}
	c := New(api, WithChannelFactory(rec.factory), WithEndpoint("ws://fallback/ws"))

	if err := c.Login(context.Background(), "alice", "pw"); err != nil {
		t.Fatal(err)
	}
	if got := rec.last().cfg.Endpoint; got != "ws://fallback/ws" {
		t.Fatalf("expected fallback endpoint, got %q", got)
	}
}
