package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/upb/role-dashboard/config"
	"github.com/upb/role-dashboard/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitRecorder observes throttled requests
type RateLimitRecorder interface {
	RateLimited(route string)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter throttles requests per client IP with a token bucket.
// Meant for the login and register forms, not general traffic.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	metrics  RateLimitRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewIPRateLimiter creates a limiter allowing cfg.LoginPerMinute requests per
// minute with bursts of cfg.LoginBurst; a non-positive rate disables it
func NewIPRateLimiter(cfg config.RateLimitConfig, metrics RateLimitRecorder, logger *zap.Logger) *IPRateLimiter {
	limit := rate.Inf
	if cfg.LoginPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.LoginPerMinute))
	}
	burst := cfg.LoginBurst
	if burst <= 0 {
		burst = 1
	}

	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		idle:     10 * time.Minute,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Allow reports whether a request from ip may proceed
func (l *IPRateLimiter) Allow(ip string) bool {
	if l.limit == rate.Inf {
		return true
	}

	now := l.now()
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Prune forgets clients not seen for a while and returns how many were dropped
func (l *IPRateLimiter) Prune() int {
	cutoff := l.now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
			dropped++
		}
	}
	return dropped
}

// Limit throttles mutating requests (POST and friends); GET renders the form
// and is never limited. Pages re-render via onLimited, API calls get a 429.
func (l *IPRateLimiter) Limit(onLimited http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			if l.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			if l.metrics != nil {
				l.metrics.RateLimited(r.URL.Path)
			}
			l.logger.Warn("rate limit exceeded",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("ip", ip),
				zap.String("path", r.URL.Path))

			w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
			if onLimited == nil || utils.WantsJSON(r) {
				_ = utils.WriteTooManyRequests(w, "Too many attempts, try again later", nil)
				return
			}
			onLimited.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr; chi's RealIP has already
// applied X-Forwarded-For / X-Real-IP when mounted
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
