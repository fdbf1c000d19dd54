package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatline/clients/go/chatline"
	"github.com/eldtechnologies/chatline/internal/live"
	"github.com/eldtechnologies/chatline/internal/models"
	"github.com/eldtechnologies/chatline/internal/session"
)

func TestReadInputSendsEachLine(t *testing.T) {
	var sent []string
	var reported []error
	send := func(ctx context.Context, body string) error {
		switch body {
		case "":
			return session.ErrEmptyBody
		case "boom":
			return errors.New("server down")
		}
		sent = append(sent, body)
		return nil
	}

	in := strings.NewReader("hello\n\nboom\nbye\n")
	if err := readInput(context.Background(), in, send, func(err error) { reported = append(reported, err) }); err != nil {
		t.Fatal(err)
	}

	if strings.Join(sent, ",") != "hello,bye" {
		t.Errorf("sent = %q", sent)
	}
	if len(reported) != 1 {
		t.Errorf("reported = %v, want only the send failure", reported)
	}
}

func TestReadInputStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, w := io.Pipe()
	defer w.Close()

	done := make(chan error, 1)
	go func() {
		done <- readInput(ctx, r, func(context.Context, string) error { return nil }, func(error) {})
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("readInput did not return after cancel")
	}
}

func TestPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	sentAt := time.Date(2024, 1, 2, 13, 4, 5, 0, time.Local).UnixMilli()
	printMessage(&buf, models.Message{ID: "1", Author: "alice", Body: "hi", SentAt: sentAt})
	if got := buf.String(); got != "[13:04:05] alice: hi\n" {
		t.Errorf("got %q", got)
	}
}

type historyAPI struct {
	history []json.RawMessage
}

func (a *historyAPI) Register(ctx context.Context, username, password string) (*chatline.RegisterResponse, error) {
	return &chatline.RegisterResponse{OK: true, Username: username}, nil
}

func (a *historyAPI) Login(ctx context.Context, username, password string) (*chatline.LoginResponse, error) {
	return &chatline.LoginResponse{OK: true, Username: username, Token: "tok", WSURL: "ws://chat.test/ws"}, nil
}

func (a *historyAPI) FetchHistory(ctx context.Context, token string) ([]json.RawMessage, error) {
	return a.history, nil
}

func (a *historyAPI) Submit(ctx context.Context, identity, body, token string) (*chatline.SubmitResponse, error) {
	return &chatline.SubmitResponse{}, nil
}

type idleChannel struct{}

func (idleChannel) Start() error { return nil }
func (idleChannel) Stop() {}
func (idleChannel) State() live.State { return live.Open }
func (idleChannel) Subscribe(fn func(live.State)) func() { return func() {} }

// slowWriter records lines and takes a little time per write, like a terminal.
type slowWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(20 * time.Microsecond)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func TestRunChatPrintsEveryHistoryMessage(t *testing.T) {
	logger = zerolog.Nop()
	const total = 2000

	api := &historyAPI{}
	for i := 0; i < total; i++ {
		api.history = append(api.history, json.RawMessage(fmt.Sprintf(
			`{"messageId":"m%d","senderId":"bob","content":"line %d","createdAt":%d}`,
			i, i, int64(1_700_000_000_000)+int64(i))))
	}
	coord := session.New(api, session.WithChannelFactory(
		func(cfg live.Config, n live.Normalizer, sink live.Admitter) session.Channel { return idleChannel{} },
	))

	out := &slowWriter{}
	err := runChat(context.Background(), coord, "alice", "secret", strings.NewReader(""), out, func(err error) {
		t.Errorf("unexpected report: %v", err)
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(out.lines) != total {
		t.Fatalf("printed %d lines, want %d", len(out.lines), total)
	}
	for i, line := range out.lines {
		if !strings.HasSuffix(line, fmt.Sprintf("bob: line %d", i)) {
			t.Fatalf("line %d = %q", i, line)
		}
	}
}

func TestPrintHistoryOrdersByTime(t *testing.T) {
	logger = zerolog.Nop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login":
			fmt.Fprint(w, `{"ok":true,"username":"alice","token":"tok"}`)
		case "/messages":
			fmt.Fprint(w, `{"messages":[
				{"messageId":"c","senderId":"bob","content":"third","createdAt":"2024-01-01T00:00:03Z"},
				{"messageId":"a","senderId":"bob","content":"first","createdAt":"2024-01-01T00:00:01Z"},
				{"messageId":"b","senderId":"bob","content":"second","createdAt":"2024-01-01T00:00:02Z"},
				{"messageId":"a","senderId":"bob","content":"first","createdAt":"2024-01-01T00:00:01Z"}
			],"count":4}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var buf bytes.Buffer
	if err := printHistory(context.Background(), chatline.NewClient(srv.URL), "alice", "secret", &buf); err != nil {
		t.Fatal(err)
	}

	var bodies []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		bodies = append(bodies, line[strings.LastIndex(line, ": ")+2:])
	}
	if got := strings.Join(bodies, ","); got != "first,second,third" {
		t.Errorf("printed order = %s", got)
	}
}
