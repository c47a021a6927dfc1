package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics records reconciliation outcomes per ingress source.
type IngestMetrics struct {
	duration *prometheus.HistogramVec
	events   *prometheus.CounterVec
}

// NewIngestMetrics registers the ingest metrics on the provided registerer.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	if reg == nil {
		return &IngestMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "entitlement_ingest_duration_seconds",
		Help:    "Duration of entitlement event reconciliation in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_ingest_events_total",
		Help: "Entitlement events processed, by ingress source and result.",
	}, []string{"source", "result"})
	reg.MustRegister(duration, events)
	return &IngestMetrics{
		duration: duration,
		events:   events,
	}
}

// ObserveDuration records the duration of one ingress call.
func (m *IngestMetrics) ObserveDuration(source string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(source).Observe(d.Seconds())
}

// IncResult counts one processed event outcome.
func (m *IngestMetrics) IncResult(source, result string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(source, result).Inc()
}
