package live

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  int
	}{
		{"single object", `{"message":{"content":"hi"}}`, 1},
		{"batch envelope", `{"messages":[{"content":"a"},{"content":"b"}]}`, 2},
		{"items envelope", `{"items":[{"content":"a"}]}`, 1},
		{"top-level array", `[{"content":"a"},"b",3]`, 3},
		{"opaque text", `hello there`, 1},
		{"blank", "  \n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseFrame([]byte(tt.frame)); len(got) != tt.want {
				t.Fatalf("expected %d entries, got %d (%v)", tt.want, len(got), got)
			}
		})
	}
}

func TestParseFrameOpaqueString(t *testing.T) {
	got := ParseFrame([]byte("plain"))
	if s, ok := got[0].(string); !ok || s != "plain" {
		t.Fatalf("expected opaque string, got %#v", got[0])
	}
}

func TestBuildURLQuery(t *testing.T) {
	raw, err := BuildURL("https://chat.example.com/ws?room=1", "alice", "tok en")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme != "wss" {
		t.Fatalf("expected wss scheme, got %q", u.Scheme)
	}
	q := u.Query()
	if q.Get("token") != "tok en" || q.Get("identity") != "alice" || q.Get("room") != "1" {
		t.Fatalf("unexpected query: %v", q)
	}
}

func TestBuildURLTemplate(t *testing.T) {
	raw, err := BuildURL("ws://localhost:8080/ws/{identity}?auth={token}", "bob", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if raw != "ws://localhost:8080/ws/bob?auth=abc" {
		t.Fatalf("unexpected url: %s", raw)
	}
}

func TestBuildURLInvalid(t *testing.T) {
	for _, endpoint := range []string{"ftp://host/x", "ws://", "::bad"} {
		if _, err := BuildURL(endpoint, "a", "b"); !errors.Is(err, ErrInvalidEndpoint) {
			t.Fatalf("%q: expected ErrInvalidEndpoint, got %v", endpoint, err)
		}
	}
}
