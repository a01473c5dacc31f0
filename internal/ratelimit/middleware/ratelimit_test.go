package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"leadtriage/internal/ratelimit"
	"leadtriage/internal/ratelimit/metrics"
	"leadtriage/pkg/testutil"
)

func newRequest(ip string, now time.Time) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/leads", nil)
	return testutil.WithTime(testutil.WithClientIP(req, ip), now)
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	t.Run("returns 429 after the burst", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		h := New(ratelimit.NewIPLimiter(6, 2), logger, WithMetrics(m)).RateLimit()(ok)

		for range 2 {
			rr := testutil.DoRequest(h, newRequest("203.0.113.7", now))
			testutil.AssertStatus(t, rr, http.StatusCreated)
		}
		rr := testutil.DoRequest(h, newRequest("203.0.113.7", now))

		testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limited", "Too many submissions. Please try again later.")
		assert.Equal(t, "10", rr.Header().Get("Retry-After"))
		assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, 2.0, promtest.ToFloat64(m.RateLimitAllowed))
		assert.Equal(t, 1.0, promtest.ToFloat64(m.RateLimitRejected))

		other := testutil.DoRequest(h, newRequest("198.51.100.2", now))
		testutil.AssertStatus(t, other, http.StatusCreated)
	})

	t.Run("disabled passes everything through", func(t *testing.T) {
		h := New(ratelimit.NewIPLimiter(0, 1), logger, WithDisabled(true)).RateLimit()(ok)
		for range 3 {
			rr := testutil.DoRequest(h, newRequest("203.0.113.7", now))
			testutil.AssertStatus(t, rr, http.StatusCreated)
		}
	})
}
