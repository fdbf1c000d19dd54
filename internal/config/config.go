package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Server holds all configuration for the companion server.
type Server struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Env         string `env:"ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"chatline.db"`
	RedisURL    string `env:"REDIS_URL"`

	// Tokens
	TokenKey    string        `env:"TOKEN_KEY"` // base64 ed25519 seed, see cmd/genkey
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	PublicWSURL string        `env:"PUBLIC_WS_URL"`

	// Rate limiting
	RateLimitWhitelist []string `env:"RATE_LIMIT_WHITELIST" envSeparator:","` // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     `env:"AUTO_BLOCK_ENABLED"`                    // Enable auto-blocking after repeated violations
}

// Client holds configuration for the chatline CLI.
type Client struct {
	BaseURL        string        `env:"CHATLINE_URL" envDefault:"http://localhost:8080"`
	Endpoint       string        `env:"CHATLINE_WS_URL"` // used when login does not return one
	BackoffFloor   time.Duration `env:"CHATLINE_BACKOFF_FLOOR" envDefault:"500ms"`
	BackoffCeiling time.Duration `env:"CHATLINE_BACKOFF_CEILING" envDefault:"15s"`
	Username       string        `env:"CHATLINE_USER"`
	Password       string        `env:"CHATLINE_PASSWORD"`
	MetricsAddr    string        `env:"CHATLINE_METRICS_ADDR"`
	LogLevel       string        `env:"CHATLINE_LOG_LEVEL" envDefault:"info"`
}

var ErrTokenKeyRequired = errors.New("TOKEN_KEY is required in production")

// LoadServer reads server configuration from environment variables.
// In development, it loads from .env file if present.
func LoadServer() (*Server, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Server{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse server config: %w", err)
	}
	cfg.RateLimitWhitelist = trimAll(cfg.RateLimitWhitelist)

	if cfg.Env == "production" && cfg.TokenKey == "" {
		return nil, ErrTokenKeyRequired
	}
	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Server) IsDevelopment() bool {
	return c.Env == "development"
}

// LoadClient reads CLI configuration from environment variables.
func LoadClient() (*Client, error) {
	_ = godotenv.Load()

	cfg := &Client{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}
	if cfg.BackoffCeiling < cfg.BackoffFloor {
		return nil, fmt.Errorf("CHATLINE_BACKOFF_CEILING (%s) is below CHATLINE_BACKOFF_FLOOR (%s)", cfg.BackoffCeiling, cfg.BackoffFloor)
	}
	return cfg, nil
}

func trimAll(entries []string) []string {
	var out []string
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
