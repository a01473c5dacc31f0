package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the leads module.
// Tracks submissions, rejected submissions, status transitions and event delivery.
type Metrics struct {
	LeadsSubmitted     prometheus.Counter
	ValidationFailures prometheus.Counter
	LeadsReachedOut    prometheus.Counter
	EventPublishErrors prometheus.Counter
	SubmitDuration     prometheus.Histogram
	ListDuration       prometheus.Histogram
}

// New registers the leads metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LeadsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadtriage_leads_submitted_total",
			Help: "Total number of leads accepted",
		}),
		ValidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadtriage_lead_validation_failures_total",
			Help: "Total number of submissions or patches rejected by validation",
		}),
		LeadsReachedOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadtriage_leads_reached_out_total",
			Help: "Total number of PENDING to REACHED_OUT transitions",
		}),
		EventPublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "leadtriage_lead_event_publish_errors_total",
			Help: "Total number of lead events that could not be delivered",
		}),
		SubmitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadtriage_submit_duration_seconds",
			Help:    "Duration of lead submissions including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ListDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leadtriage_list_duration_seconds",
			Help:    "Duration of list and search operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementSubmitted records an accepted lead.
func (m *Metrics) IncrementSubmitted() {
	m.LeadsSubmitted.Inc()
}

// IncrementValidationFailure records a rejected submission or patch.
func (m *Metrics) IncrementValidationFailure() {
	m.ValidationFailures.Inc()
}

// IncrementReachedOut records a status transition.
func (m *Metrics) IncrementReachedOut() {
	m.LeadsReachedOut.Inc()
}

// IncrementEventPublishError records an undelivered event.
func (m *Metrics) IncrementEventPublishError() {
	m.EventPublishErrors.Inc()
}

// ObserveSubmit records the duration of a submission.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSubmit(start time.Time) {
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}

// ObserveList records the duration of a list or search.
func (m *Metrics) ObserveList(start time.Time) {
	m.ListDuration.Observe(time.Since(start).Seconds())
}
