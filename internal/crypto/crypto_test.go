package crypto

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestSigner(t *testing.T) *TokenSigner {
	t.Helper()
	seed, err := GenerateSeed()
	if err != nil {
		t.Fatal(err)
	}
	priv, err := ParseSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewTokenSigner(priv)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestSigner(t)

	token, issued, err := s.Issue("alice", "u-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := s.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if *claims != issued {
		t.Fatalf("expected %+v, got %+v", issued, *claims)
	}
}

func TestTokenExpired(t *testing.T) {
	s := newTestSigner(t)
	token, _, err := s.Issue("alice", "u-1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := s.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenTampered(t *testing.T) {
	s := newTestSigner(t)
	token, _, _ := s.Issue("alice", "u-1", time.Hour)
	other, _, _ := s.Issue("mallory", "u-2", time.Hour)

	payload, _, _ := strings.Cut(other, ".")
	_, sig, _ := strings.Cut(token, ".")

	for _, bad := range []string{"", "nodot", payload + "." + sig, "!!!." + sig} {
		if _, err := s.Verify(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", bad, err)
		}
	}
}

func TestTokenFromOtherKeyRejected(t *testing.T) {
	a := newTestSigner(t)
	b := newTestSigner(t)

	token, _, _ := a.Issue("alice", "u-1", time.Hour)
	if _, err := b.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseSeedRejectsBadInput(t *testing.T) {
	for _, in := range []string{"not base64!", "c2hvcnQ="} {
		if _, err := ParseSeed(in); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for %q, got %v", in, err)
		}
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestMessageIDsSortable(t *testing.T) {
	a := NewMessageID()
	time.Sleep(2 * time.Millisecond)
	b := NewMessageID()
	if len(a) != 26 || a >= b {
		t.Fatalf("expected sortable 26-char ids, got %q then %q", a, b)
	}
}
