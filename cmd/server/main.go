package main

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatline/internal/api"
	"github.com/eldtechnologies/chatline/internal/api/middleware"
	"github.com/eldtechnologies/chatline/internal/config"
	"github.com/eldtechnologies/chatline/internal/crypto"
	"github.com/eldtechnologies/chatline/internal/handlers"
	"github.com/eldtechnologies/chatline/internal/hub"
	"github.com/eldtechnologies/chatline/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.LoadServer()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Users live in PostgreSQL when configured, otherwise SQLite.
	var users store.UserStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		users = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite open failed")
		}
		users = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite user store")
	}
	defer users.Close()

	// Messages live in Redis when configured, otherwise in memory.
	var (
		messages   store.MessageLog
		redisStore *store.RedisStore
		limits     middleware.LimitStore
	)
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		messages = redisStore
		limits = middleware.NewRedisLimitStore(redisStore.Client())
		logger.Info().Msg("connected to Redis")
	} else {
		messages = store.NewMemoryLog()
		logger.Warn().Msg("REDIS_URL not set, messages are kept in memory")
	}

	var key ed25519.PrivateKey
	if cfg.TokenKey != "" {
		key, err = crypto.ParseSeed(cfg.TokenKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid TOKEN_KEY")
		}
	} else {
		logger.Warn().Msg("TOKEN_KEY not set, tokens will not survive a restart")
	}
	tokens, err := crypto.NewTokenSigner(key)
	if err != nil {
		logger.Fatal().Err(err).Msg("token signer")
	}

	h := hub.New(logger)
	handler := handlers.NewHandler(handlers.Deps{
		Users:       users,
		Messages:    messages,
		Redis:       redisStore,
		Hub:         h,
		Tokens:      tokens,
		TokenTTL:    cfg.TokenTTL,
		PublicWSURL: cfg.PublicWSURL,
		Logger:      logger,
	})

	// Create router
	router := api.NewRouter(logger, handler, middleware.NewAuthMiddleware(tokens), api.Options{
		Limits:    limits,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server. No WriteTimeout: websocket connections are long lived
	// and manage their own write deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chatline server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	h.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
