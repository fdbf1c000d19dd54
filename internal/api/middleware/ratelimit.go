package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatline/internal/crypto"
	"github.com/eldtechnologies/chatline/internal/metrics"
)

// Limit caps requests per key within a sliding window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// ipLimits apply before authentication, keyed by client IP.
var ipLimits = map[string]Limit{
	"POST /register": {10, time.Hour},
	"POST /login":    {20, time.Minute},
	"GET /ws":        {30, time.Minute}, // handshakes, not frames
}

// identityLimits apply after authentication, keyed by token subject.
var identityLimits = map[string]Limit{
	"GET /messages":  {120, time.Minute},
	"POST /messages": {30, time.Minute},
}

// LimitStore keeps rate limit counters and IP blocks.
type LimitStore interface {
	// Hit records a request under key and returns the number of requests
	// in the trailing window, this one included.
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
	// Strike records a limit violation by ip and returns the violations
	// in the last hour.
	Strike(ctx context.Context, ip string) (int64, error)
	Block(ctx context.Context, ip string, d time.Duration) error
	Blocked(ctx context.Context, ip string) (bool, error)
}

// RedisLimitStore keeps counters in Redis so limits hold across replicas.
type RedisLimitStore struct {
	client *redis.Client
}

// NewRedisLimitStore creates a LimitStore on client.
func NewRedisLimitStore(client *redis.Client) *RedisLimitStore {
	return &RedisLimitStore{client: client}
}

// Hit keeps one sorted set per key, scored by request time in ms.
func (s *RedisLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: crypto.NewMessageID()})
	count := pipe.ZCard(ctx, key)
	pipe.PExpire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return count.Val(), nil
}

func (s *RedisLimitStore) Strike(ctx context.Context, ip string) (int64, error) {
	key := "ratelimit:strikes:" + ip
	pipe := s.client.TxPipeline()
	n := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return n.Val(), nil
}

func (s *RedisLimitStore) Block(ctx context.Context, ip string, d time.Duration) error {
	return s.client.Set(ctx, "ratelimit:blocked:"+ip, time.Now().Add(d).Unix(), d).Err()
}

func (s *RedisLimitStore) Blocked(ctx context.Context, ip string) (bool, error) {
	n, err := s.client.Exists(ctx, "ratelimit:blocked:"+ip).Result()
	return n > 0, err
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
	StrikesToBlock   int      // violations per hour before a block, default 10
	BlockDuration    time.Duration
}

// RateLimiter enforces ipLimits and identityLimits against a LimitStore.
// Store errors fail open.
type RateLimiter struct {
	store     LimitStore
	logger    zerolog.Logger
	whitelist []netip.Prefix
	cfg       RateLimiterConfig
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(store LimitStore, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	if cfg.StrikesToBlock <= 0 {
		cfg.StrikesToBlock = 10
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = 24 * time.Hour
	}
	rl := &RateLimiter{store: store, logger: logger, cfg: cfg}

	for _, entry := range cfg.Whitelist {
		prefix, err := parsePrefix(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid whitelist entry")
			continue
		}
		rl.whitelist = append(rl.whitelist, prefix)
	}
	if len(rl.whitelist) > 0 {
		logger.Info().Int("entries", len(rl.whitelist)).Msg("rate limit whitelist configured")
	}
	return rl
}

// parsePrefix accepts a CIDR or a single address.
func parsePrefix(entry string) (netip.Prefix, error) {
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (rl *RateLimiter) isWhitelisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.whitelist {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// RealIP returns the client IP. chi's RealIP middleware has already
// moved X-Real-IP or X-Forwarded-For into RemoteAddr; Fly-Client-IP,
// set by the edge proxy, wins over both.
func RealIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("Fly-Client-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware applies the IP limits and IP blocks. Mount it globally.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		blocked, err := rl.store.Blocked(r.Context(), ip)
		if err != nil {
			rl.logger.Error().Err(err).Msg("rate limit store")
		}
		if blocked {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		if limit, ok := ipLimits[r.Method+" "+r.URL.Path]; ok {
			if !rl.allow(w, r, "ratelimit:ip:"+ip+":"+r.URL.Path, limit, ip) {
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// PerIdentity applies the identity limits. Mount it after RequireAuth.
func (rl *RateLimiter) PerIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaimsFromContext(r.Context())
		limit, ok := identityLimits[r.Method+" "+r.URL.Path]
		if claims == nil || !ok || rl.isWhitelisted(RealIP(r)) {
			next.ServeHTTP(w, r)
			return
		}
		key := fmt.Sprintf("ratelimit:user:%s:%s:%s", claims.Subject, r.Method, r.URL.Path)
		if rl.allow(w, r, key, limit, RealIP(r)) {
			next.ServeHTTP(w, r)
		}
	})
}

// allow counts the request and writes the 429 response when over limit.
func (rl *RateLimiter) allow(w http.ResponseWriter, r *http.Request, key string, limit Limit, ip string) bool {
	count, err := rl.store.Hit(r.Context(), key, limit.Window)
	if err != nil {
		rl.logger.Error().Err(err).Str("key", key).Msg("rate limit store")
		return true
	}

	remaining := max(limit.Requests-int(count), 0)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(limit.Window).Unix(), 10))
	if count <= int64(limit.Requests) {
		return true
	}

	metrics.RateLimitHits.WithLabelValues(normalizePath(r.URL.Path)).Inc()
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "rate_limit_exceeded").
		Str("ip", ip).
		Str("endpoint", r.URL.Path).
		Str("key", key).
		Msg("rate limit exceeded")
	rl.strike(r.Context(), ip)

	w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
	jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

// strike counts a violation and blocks repeat offenders.
func (rl *RateLimiter) strike(ctx context.Context, ip string) {
	if !rl.cfg.AutoBlockEnabled {
		return
	}
	n, err := rl.store.Strike(ctx, ip)
	if err != nil || n < int64(rl.cfg.StrikesToBlock) {
		return
	}
	if err := rl.store.Block(ctx, ip, rl.cfg.BlockDuration); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("block IP")
		return
	}
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", n).
		Dur("duration", rl.cfg.BlockDuration).
		Msg("IP auto-blocked for repeated violations")
}
