package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics tracks the outbox publisher: per-event outcomes and how long
// each batch transaction stays open.
type RelayMetrics struct {
	events  *prometheus.CounterVec
	batches prometheus.Histogram
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "relayed_events_total",
		Help:      "Outbox events handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batches := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of one relay batch, fetch to commit.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(events, batches)
	return &RelayMetrics{events: events, batches: batches}
}

func (m *RelayMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(label(eventType), label(outcome)).Inc()
}

func (m *RelayMetrics) ObserveBatch(d time.Duration) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Observe(d.Seconds())
}
