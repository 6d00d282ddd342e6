// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the two request limiters:
//
//   - RateLimiter: a process-local token bucket per client, installed on every
//     route as coarse edge protection (golang.org/x/time/rate).
//   - SubmissionWindow: the per-client sliding window on submission routes,
//     delegating to a ratelimit.Limiter (memory or Redis).
//
// Both skip requests that IdempotencyValidator marked as replays of a
// completed submission, and both answer 429 with a Retry-After header.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/tbourn/club-apply-backend/internal/ratelimit"
)

// UnknownIdentity is the shared identity of requests with no usable address.
const UnknownIdentity = "unknown"

const ctxKeyIdentity = "client.identity"

// ClientIP returns a middleware that resolves the client identity once and
// stores it for ClientIdentity. platformHeader names the header the hosting
// platform sets with the real client address; it may be empty.
//
// Resolution order: platformHeader, first X-Forwarded-For entry, X-Real-IP,
// the connection's remote address, UnknownIdentity. With trustForwarded off
// the two forwarded headers are ignored; turn it off when no proxy in front
// of the service overwrites them, or clients can pick their own identity.
func ClientIP(platformHeader string, trustForwarded bool) gin.HandlerFunc {
	platformHeader = strings.TrimSpace(platformHeader)
	return func(c *gin.Context) {
		c.Set(ctxKeyIdentity, resolveIdentity(c.Request, platformHeader, trustForwarded))
		c.Next()
	}
}

// ClientIdentity returns the identity resolved by ClientIP, resolving it
// without a platform header when the middleware is not installed.
func ClientIdentity(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if s := asString(v); s != "" {
			return s
		}
	}
	return resolveIdentity(c.Request, "", true)
}

func resolveIdentity(r *http.Request, platformHeader string, trustForwarded bool) string {
	if platformHeader != "" {
		if v := strings.TrimSpace(r.Header.Get(platformHeader)); v != "" {
			return v
		}
	}
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
			return v
		}
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}
		return r.RemoteAddr
	}
	return UnknownIdentity
}

// visitor holds a single rate limiter and the last time it was seen.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket. Buckets are created on demand and
// idle ones are evicted opportunistically. Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs a RateLimiter refilling rps tokens per second
// with the given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the limiter for key, creating it if absent.
//
// GC runs before the lookup so that a stale bucket is evicted even when it is
// the one being fetched.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Handler returns the edge limiting middleware.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		if rl.getVisitor(ClientIdentity(c)).Allow() {
			c.Next()
			return
		}
		rateLimited(c, "edge", 1)
	}
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay of a completed submission.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SubmissionWindow returns a middleware that admits at most the limiter's
// quota of submissions per client within its sliding window. Rejected
// attempts are not counted. A limiter error lets the request through and is
// logged.
func SubmissionWindow(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		id := ClientIdentity(c)
		d, err := limiter.Check(c.Request.Context(), id, time.Now())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("submission window unavailable, allowing request")
		}
		if d.Allowed {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			c.Next()
			return
		}
		rateLimited(c, "submit", d.RetryAfter)
	}
}

func rateLimited(c *gin.Context, scope string, retryAfter int) {
	if retryAfter < 1 {
		retryAfter = 1
	}
	rateLimitRejections.WithLabelValues(scope).Inc()
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	AbortWithError(c, http.StatusTooManyRequests, CodeRateLimited, MsgRateLimited)
}
