package middleware

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/peerchat-io/peerchat/internal/metrics"
	"github.com/peerchat-io/peerchat/internal/store"
)

// RateLimiter enforces a per-identity request budget backed by Redis
// counters. Unidentified requests are keyed by remote address.
type RateLimiter struct {
	redis  *store.RedisStore
	limit  int
	logger zerolog.Logger
}

// NewRateLimiter creates a rate limiter. limit is requests per minute.
func NewRateLimiter(redis *store.RedisStore, limit int, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{redis: redis, limit: limit, logger: logger}
}

// Middleware applies the rate limit. Redis failures fail open: losing rate
// limiting is better than losing the API.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get(IdentityHeader)
		if caller == "" {
			caller = r.RemoteAddr
		}

		ok, err := l.redis.CheckRateLimit(r.Context(), caller, l.limit)
		if err != nil {
			l.logger.Warn().Err(err).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			metrics.RateLimitHits.WithLabelValues(r.URL.Path).Inc()
			w.Header().Set("Retry-After", "60")
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if err := l.redis.IncrementRateLimit(r.Context(), caller); err != nil {
			l.logger.Warn().Err(err).Msg("rate limit increment failed")
		}

		next.ServeHTTP(w, r)
	})
}
