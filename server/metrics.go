package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the per-server request counters and latency histogram of
// §4.6's pipeline, labeled by response status so operators can tell apart
// business faults from protocol/server faults at a glance.
type metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer, namespace string) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests handled by the pipeline, labeled by response status.",
		}, []string{"status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request handling latency from parse through encoded response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency)
	}
	return m
}

func (m *metrics) observe(status string, seconds float64) {
	m.requests.WithLabelValues(status).Inc()
	m.latency.WithLabelValues(status).Observe(seconds)
}
