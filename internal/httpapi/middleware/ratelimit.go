package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Counter counts hits per key within a fixed window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter rejects callers exceeding a per-window budget.
type RateLimiter struct {
	counter   Counter
	namespace string
	logger    *zap.Logger
}

// NewRateLimiter builds a limiter whose keys live under namespace.
func NewRateLimiter(counter Counter, namespace string, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{counter: counter, namespace: namespace, logger: logger}
}

// Limit allows at most limit requests per window for each key returned by
// keyFn. Counter failures let the request through.
func (l *RateLimiter) Limit(name string, limit int, window time.Duration, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := l.namespace + ":ratelimit:" + name + ":" + keyFn(r)
			n, err := l.counter.Incr(r.Context(), key, window)
			if err != nil {
				l.logger.Warn("rate limit counter unavailable", zap.String("limit", name), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if n > int64(limit) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeJSONError(w, http.StatusTooManyRequests, "too many requests, try again later", "rate_limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
