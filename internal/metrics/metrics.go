// Package metrics exposes Prometheus collectors for flow actions, the cascade
// job and outbound notifications.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "treeflow"

// Registry holds every treeflow collector. Served by Handler.
var Registry = prometheus.NewRegistry()

var (
	cascadeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_runs_total",
			Help:      "Cascade recompute runs by outcome (ok, noop, cycle, error).",
		},
		[]string{"outcome"},
	)
	cascadeUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_participants_updated_total",
			Help:      "Participants re-timed by cascade runs.",
		},
	)
	cascadeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cascade_duration_seconds",
			Help:      "Wall time of one cascade run.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)
	flowActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_actions_total",
			Help:      "Flow state machine actions by name and outcome.",
		},
		[]string{"action", "outcome"},
	)
	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notifications handed to the gateway by kind.",
		},
		[]string{"kind"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(cascadeRuns)
		Registry.MustRegister(cascadeUpdated)
		Registry.MustRegister(cascadeDuration)
		Registry.MustRegister(flowActions)
		Registry.MustRegister(notificationsSent)
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordCascadeRun records one cascade run with its outcome, the number of
// participants it re-timed and how long it took.
func RecordCascadeRun(outcome string, updated int, d time.Duration) {
	cascadeRuns.WithLabelValues(outcome).Inc()
	cascadeUpdated.Add(float64(updated))
	cascadeDuration.Observe(d.Seconds())
}

// RecordFlowAction counts a state machine action under its outcome
// (ok, rejected, failed).
func RecordFlowAction(action, outcome string) {
	flowActions.WithLabelValues(action, outcome).Inc()
}

func RecordNotification(kind string) {
	notificationsSent.WithLabelValues(kind).Inc()
}
