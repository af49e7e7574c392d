// Package metrics holds the prometheus collectors exported by the api and
// worker processes. Every recorder tolerates a nil receiver.
package metrics

import (
	"cmp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shopflow"

// Cron run outcomes.
const (
	CronOutcomeSuccess = "success"
	CronOutcomeFailure = "failure"
	CronOutcomeSkipped = "skipped"
)

// CronJobMetrics records how each cron job run ended and how long it took.
type CronJobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewCronJobMetrics registers the cron collectors on reg. A nil registerer
// yields a recorder that drops everything.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	m := &CronJobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_runs_total",
			Help:      "Cron job runs by outcome. Skipped means another worker held the lock.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Wall time of cron job runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration)
	return m
}

func (c *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if c == nil {
		return
	}
	c.duration.WithLabelValues(label(job)).Observe(d.Seconds())
}

func (c *CronJobMetrics) IncSuccess(job string) { c.inc(job, CronOutcomeSuccess) }
func (c *CronJobMetrics) IncFailure(job string) { c.inc(job, CronOutcomeFailure) }
func (c *CronJobMetrics) IncSkipped(job string) { c.inc(job, CronOutcomeSkipped) }

func (c *CronJobMetrics) inc(job, outcome string) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(label(job), outcome).Inc()
}

func label(v string) string {
	return cmp.Or(v, "unknown")
}
