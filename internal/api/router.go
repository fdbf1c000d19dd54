package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatline/internal/api/middleware"
	"github.com/eldtechnologies/chatline/internal/handlers"
)

// maxBodyBytes fits a 5000 character message of 4-byte runes plus JSON overhead.
const maxBodyBytes = 32 * 1024

// Options configures optional router behavior.
type Options struct {
	// Limits enables rate limiting when non-nil.
	Limits    middleware.LimitStore
	RateLimit middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, auth *middleware.AuthMiddleware, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	var limiter *middleware.RateLimiter
	if opts.Limits != nil {
		limiter = middleware.NewRateLimiter(opts.Limits, logger, opts.RateLimit)
		r.Use(limiter.Middleware)
	} else {
		logger.Warn().Msg("no limit store configured, rate limiting disabled")
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/who/{username}", h.Who)
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		if limiter != nil {
			r.Use(limiter.PerIdentity)
		}

		r.Get("/messages", h.ListMessages)
		r.Post("/messages", h.PostMessage)
		r.Get("/ws", h.ServeWS)
	})

	return r
}
