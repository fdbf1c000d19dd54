package config

import (
	"errors"
	"os"
	"testing"
	"time"
)

// unsetenv clears keys for the duration of the test.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadServerDefaults(t *testing.T) {
	unsetenv(t, "ENV", "PORT", "TOKEN_TTL")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected port 8080, got %q", cfg.Port)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development, got %q", cfg.Env)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("expected 24h token ttl, got %s", cfg.TokenTTL)
	}
}

func TestLoadServerWhitelist(t *testing.T) {
	unsetenv(t, "ENV")
	t.Setenv("RATE_LIMIT_WHITELIST", " 10.0.0.1, 192.168.0.0/16 ,,")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"10.0.0.1", "192.168.0.0/16"}
	if len(cfg.RateLimitWhitelist) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.RateLimitWhitelist)
	}
	for i := range want {
		if cfg.RateLimitWhitelist[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, cfg.RateLimitWhitelist)
		}
	}
}

func TestLoadServerProductionRequiresTokenKey(t *testing.T) {
	t.Setenv("ENV", "production")
	unsetenv(t, "TOKEN_KEY")

	if _, err := LoadServer(); !errors.Is(err, ErrTokenKeyRequired) {
		t.Fatalf("expected ErrTokenKeyRequired, got %v", err)
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("CHATLINE_URL", "https://chat.example")
	t.Setenv("CHATLINE_BACKOFF_FLOOR", "1s")
	t.Setenv("CHATLINE_BACKOFF_CEILING", "30s")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://chat.example" {
		t.Fatalf("unexpected base url %q", cfg.BaseURL)
	}
	if cfg.BackoffFloor != time.Second || cfg.BackoffCeiling != 30*time.Second {
		t.Fatalf("unexpected backoff %s..%s", cfg.BackoffFloor, cfg.BackoffCeiling)
	}
}

func TestLoadClientRejectsInvertedBackoff(t *testing.T) {
	t.Setenv("CHATLINE_BACKOFF_FLOOR", "10s")
	t.Setenv("CHATLINE_BACKOFF_CEILING", "1s")

	if _, err := LoadClient(); err == nil {
		t.Fatal("expected an error for ceiling below floor")
	}
}
