package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconcileMetrics counts payment confirmation outcomes by where the check
// came from (return, check, ipn, sweep) and what it concluded.
type ReconcileMetrics struct {
	outcomes *prometheus.CounterVec
}

func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "reconcile_outcomes_total",
		Help:      "Payment confirmation outcomes by source and result.",
	}, []string{"source", "result"})
	reg.MustRegister(outcomes)
	return &ReconcileMetrics{outcomes: outcomes}
}

// Observe records one outcome.
func (r *ReconcileMetrics) Observe(source, result string) {
	if r == nil || r.outcomes == nil {
		return
	}
	r.outcomes.WithLabelValues(label(source), label(result)).Inc()
}
