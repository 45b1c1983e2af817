// Package metrics exposes Prometheus instrumentation for the dispatch
// engine. Metrics are package-level collectors registered with the default
// registry; the host binary decides how they are scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbook_dispatch_total",
			Help: "Total single-run dispatch attempts by dispatch type and result",
		},
		[]string{"dispatch_type", "result"},
	)

	runGroups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbook_run_group_total",
			Help: "Total run groups created by dispatch type",
		},
		[]string{"dispatch_type"},
	)

	scheduledSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playbook_scheduled_skip_total",
			Help: "Scheduled ticks skipped due to stale state, by reason",
		},
		[]string{"reason"},
	)

	templateEvaluation = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playbook_template_evaluation_seconds",
			Help:    "Duration of template expression evaluation",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)
)

// RecordDispatch increments the dispatch counter.
// result is "success" or "failure".
func RecordDispatch(dispatchType, result string) {
	dispatches.WithLabelValues(dispatchType, result).Inc()
}

// RecordRunGroup increments the run group counter.
func RecordRunGroup(dispatchType string) {
	runGroups.WithLabelValues(dispatchType).Inc()
}

// RecordScheduledSkip increments the stale scheduled-tick counter.
// reason is one of: playbook_missing, unpublished, superseded,
// organization_disabled, playbook_disabled, trigger_missing.
func RecordScheduledSkip(reason string) {
	scheduledSkips.WithLabelValues(reason).Inc()
}

// ObserveTemplateEvaluation records one template evaluation duration.
func ObserveTemplateEvaluation(d time.Duration) {
	templateEvaluation.Observe(d.Seconds())
}
