// Package httptransport assembles the HTTP surface: the shared middleware
// chain, health and metrics endpoints, and the feature handlers grouped by
// the access they require.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leadtriage/internal/platform/metrics"
	"leadtriage/internal/platform/middleware"
	"leadtriage/pkg/platform/httputil"
	"leadtriage/pkg/platform/middleware/auth"
	"leadtriage/pkg/platform/middleware/metadata"
	"leadtriage/pkg/platform/middleware/requesttime"
	"leadtriage/pkg/requestcontext"
)

// RequestTimeout bounds every request's context.
const RequestTimeout = 30 * time.Second

// HealthChecker reports whether the lead store answers.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// LeadRoutes mounts lead endpoints per access group.
type LeadRoutes interface {
	RegisterPublic(r chi.Router)
	RegisterIntake(r chi.Router)
	RegisterReview(r chi.Router)
}

// Registrar mounts endpoints on a router.
type Registrar interface {
	Register(r chi.Router)
}

// Deps collects everything the router wires together. RateLimit, Gatherer
// and Proxies may be nil.
type Deps struct {
	Logger    *slog.Logger
	Proxies   *metadata.Resolver
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Health    HealthChecker
	Sessions  auth.SessionVerifier
	RateLimit func(http.Handler) http.Handler
	Leads     LeadRoutes
	Staff     Registrar
	Resumes   Registrar
}

type healthResponse struct {
	Status string `json:"status"`
}

// NewRouter builds the service's HTTP handler.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata(d.Proxies))
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(middleware.LatencyMiddleware(d.Metrics))

	r.Get("/healthz", handleHealth(d.Health, d.Logger))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	rateLimit := d.RateLimit
	if rateLimit == nil {
		rateLimit = func(next http.Handler) http.Handler { return next }
	}

	// Public
	d.Leads.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(rateLimit)
		d.Leads.RegisterIntake(r)
		d.Staff.Register(r)
	})

	// Staff only
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(d.Sessions, d.Logger))
		d.Leads.RegisterReview(r)
		if d.Resumes != nil {
			d.Resumes.Register(r)
		}
	})

	return r
}

func handleHealth(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if err := checker.Health(ctx); err != nil {
			logger.ErrorContext(ctx, "health check failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
