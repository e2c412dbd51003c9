package eventsink

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusEventSink turns events into counters and histograms scraped by
// the metrics endpoint.
type PrometheusEventSink struct {
	requestsTotal *prometheus.CounterVec
	scanDuration  *prometheus.HistogramVec
	backendErrors *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
}

// NewPrometheusEventSink registers its collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the global default
// registry across test runs.
func NewPrometheusEventSink(reg prometheus.Registerer) *PrometheusEventSink {
	s := &PrometheusEventSink{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentry_requests_total",
			Help: "Total gateway requests by outcome kind.",
		}, []string{"kind", "model"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentry_scan_duration_seconds",
			Help:    "Duration of scan-related events.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentry_backend_errors_total",
			Help: "Backend call failures by model.",
		}, []string{"model"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentry_queue_depth",
			Help: "Current queued request count per model.",
		}, []string{"model"}),
	}
	reg.MustRegister(s.requestsTotal, s.scanDuration, s.backendErrors, s.queueDepth)
	return s
}

// SetQueueDepth updates the queue-depth gauge for model. Emit does not
// touch this gauge, since queue depth is a level, not an event; nothing
// in this repository calls SetQueueDepth.
func (s *PrometheusEventSink) SetQueueDepth(model string, depth int) {
	s.queueDepth.WithLabelValues(model).Set(float64(depth))
}

func (s *PrometheusEventSink) Emit(e Event) {
	s.requestsTotal.WithLabelValues(string(e.Kind), e.Model).Inc()
	if e.Duration > 0 {
		s.scanDuration.WithLabelValues(string(e.Kind)).Observe(e.Duration.Seconds())
	}
	if e.Kind == KindBackendError {
		s.backendErrors.WithLabelValues(e.Model).Inc()
	}
}
