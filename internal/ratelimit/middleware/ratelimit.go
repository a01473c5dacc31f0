package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"leadtriage/internal/ratelimit"
	"leadtriage/internal/ratelimit/metrics"
	dErrors "leadtriage/pkg/domain-errors"
	"leadtriage/pkg/platform/httputil"
	"leadtriage/pkg/requestcontext"
)

type RateLimiter interface {
	Allow(ip string, now time.Time) ratelimit.Result
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit throttles requests by client IP. It relies on the client
// metadata middleware having stored the IP.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			result := m.limiter.Allow(ip, requestcontext.Now(ctx))

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				if m.metrics != nil {
					m.metrics.IncrementRejected()
				}
				m.logger.WarnContext(ctx, "intake rate limit exceeded",
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", ip,
				)
				writeRateLimitExceeded(w, result)
				return
			}
			if m.metrics != nil {
				m.metrics.IncrementAllowed()
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
}

func writeRateLimitExceeded(w http.ResponseWriter, result ratelimit.Result) {
	retryAfter := max(int(math.Ceil(result.RetryAfter.Seconds())), 1)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "Too many submissions. Please try again later."))
}
