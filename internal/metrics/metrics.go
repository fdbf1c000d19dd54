package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatline_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatline_users_registered_total",
			Help: "Total users registered",
		},
	)

	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_logins_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"}, // "ok" or "denied"
	)

	MessagesPosted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatline_messages_posted_total",
			Help: "Total messages posted",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatline_websocket_clients",
			Help: "Currently connected websocket clients",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatline_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	// Client metrics
	LiveState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatline_client_live_state",
			Help: "Live channel state (0 idle, 1 connecting, 2 open, 3 closed, 4 failed)",
		},
	)

	LiveDialAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_client_live_dial_attempts_total",
			Help: "Live channel dial attempts by outcome",
		},
		[]string{"outcome"}, // "ok" or "error"
	)

	LiveReconnectDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatline_client_live_reconnect_delay_seconds",
			Help:    "Scheduled reconnect delays",
			Buckets: []float64{.5, 1, 2, 4, 8, 15},
		},
	)

	LiveFramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatline_client_live_frames_dropped_total",
			Help: "Inbound entries that were not messages",
		},
	)

	FeedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_client_feed_messages_total",
			Help: "Messages offered to the feed by outcome",
		},
		[]string{"outcome"}, // "admitted" or "duplicate"
	)

	HistoryFetchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatline_client_history_fetch_failures_total",
			Help: "History fetches that failed after login",
		},
	)
)

// FeedObserver reports feed admissions to FeedMessages.
type FeedObserver struct{}

func (FeedObserver) Admitted()  { FeedMessages.WithLabelValues("admitted").Inc() }
func (FeedObserver) Duplicate() { FeedMessages.WithLabelValues("duplicate").Inc() }
