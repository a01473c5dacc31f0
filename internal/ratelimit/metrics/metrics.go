package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitAllowed  prometheus.Counter
	RateLimitRejected prometheus.Counter
	TrackedClients    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RateLimitAllowed: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadtriage_ratelimit_allowed_total",
			Help: "Total number of intake requests admitted by the rate limiter",
		}),
		RateLimitRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadtriage_ratelimit_rejected_total",
			Help: "Total number of intake requests rejected by the rate limiter",
		}),
		TrackedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "leadtriage_ratelimit_tracked_clients",
			Help: "Current number of client IPs with a live token bucket",
		}),
	}
}

func (m *Metrics) IncrementAllowed() {
	m.RateLimitAllowed.Inc()
}

func (m *Metrics) IncrementRejected() {
	m.RateLimitRejected.Inc()
}

func (m *Metrics) SetTrackedClients(count int) {
	m.TrackedClients.Set(float64(count))
}
