package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/polewatch/control-plane/pkg/cache"
	"go.uber.org/zap"
)

// RateLimitInfo contains rate limit information for response headers
type RateLimitInfo struct {
	// Limit is the maximum number of requests allowed per window
	Limit int64
	// Remaining is the number of requests remaining in the current window
	Remaining int64
	// ResetAt is the Unix timestamp when the window resets
	ResetAt int64
	// RetryAfter is the number of seconds to wait before retrying (only set when limited)
	RetryAfter int64
}

// RateLimiter throttles API clients with a fixed per-minute window in Redis.
// The citizen app talks to this API from the open internet, so the window is
// keyed on client IP. Redis being down fails open: throttling is protection,
// not correctness.
type RateLimiter struct {
	cache  *cache.Cache
	limit  int64
	logger *zap.Logger
}

// NewRateLimiter creates a rate limiter allowing limit requests per client
// per minute. A zero limit disables throttling.
func NewRateLimiter(cache *cache.Cache, limit int64, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		cache:  cache,
		limit:  limit,
		logger: logger,
	}
}

// Check counts one request for the client and reports whether it is allowed.
func (rl *RateLimiter) Check(ctx context.Context, clientIP string, now time.Time) (bool, *RateLimitInfo, error) {
	windowKey := fmt.Sprintf("ratelimit:ip:%s:minute:%s", clientIP, now.UTC().Format("2006-01-02T15:04"))
	resetAt := now.Truncate(time.Minute).Add(time.Minute).Unix()

	count, err := rl.cache.Incr(ctx, windowKey)
	if err != nil {
		return false, nil, err
	}

	// 65s TTL so a window straddling the expiry still counts correctly
	if count == 1 {
		if err := rl.cache.Expire(ctx, windowKey, 65*time.Second); err != nil {
			rl.logger.Debug("failed to set rate limit window TTL", zap.Error(err))
		}
	}

	info := &RateLimitInfo{
		Limit:   rl.limit,
		ResetAt: resetAt,
	}

	if count > rl.limit {
		info.Remaining = 0
		info.RetryAfter = resetAt - now.Unix()
		if info.RetryAfter < 1 {
			info.RetryAfter = 1
		}
		return false, info, nil
	}

	info.Remaining = rl.limit - count
	return true, info, nil
}

// setHeaders writes the standard X-RateLimit response headers.
func (info *RateLimitInfo) setHeaders(w http.ResponseWriter) {
	if info == nil {
		return
	}

	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(info.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(info.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt, 10))

	if info.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(info.RetryAfter, 10))
	}
}

// rateLimitMiddleware throttles /api/v1 requests per client IP.
func (g *Gateway) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.limiter == nil || g.limiter.limit <= 0 || g.limiter.cache == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, info, err := g.limiter.Check(r.Context(), clientIP(r), g.now())
		if err != nil {
			g.logger.Warn("rate limit check failed, allowing request", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		info.setHeaders(w)

		if !allowed {
			g.logger.Warn("rate limit exceeded",
				zap.String("client_ip", r.RemoteAddr),
				zap.String("path", r.URL.Path),
			)
			g.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr; RealIP middleware has already
// substituted forwarded-for headers where present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
