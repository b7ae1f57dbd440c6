package facade

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records per-operation outcomes of façade calls.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	fallbacks *prometheus.CounterVec
}

// NewMetrics registers the façade collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashcore",
			Subsystem: "facade",
			Name:      "requests_total",
			Help:      "Report requests by operation, backend and outcome",
		}, []string{"op", "backend", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dashcore",
			Subsystem: "facade",
			Name:      "request_duration_seconds",
			Help:      "Report request latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"op", "backend"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dashcore",
			Subsystem: "facade",
			Name:      "fallbacks_total",
			Help:      "Requests answered with a default result after a backend failure",
		}, []string{"op", "backend"}),
	}
}

// Observe records an operation outcome. A nil receiver is a no-op.
func (m *Metrics) Observe(op, backend string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	m.requests.WithLabelValues(op, backend, status).Inc()
	m.duration.WithLabelValues(op, backend).Observe(d.Seconds())
}

func (m *Metrics) fallback(op, backend string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(op, backend).Inc()
}
