// Package metrics exposes Prometheus instruments for the vault and the
// automation engine. Every Recorder owns its registry so tests and multiple
// engines in one process do not collide.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portal_automation"

// Recorder groups the service's instruments.
type Recorder struct {
	registry *prometheus.Registry

	queueDepth    prometheus.Gauge
	tasksQueued   *prometheus.CounterVec
	taskOutcomes  *prometheus.CounterVec
	taskRetries   *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	vaultOps      *prometheus.CounterVec
	eventsEmitted *prometheus.CounterVec
}

// NewRecorder creates and registers all instruments.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting in the automation queue.",
		}),
		tasksQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_queued_total",
			Help:      "Tasks accepted by the queue.",
		}, []string{"system", "priority"}),
		taskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_attempts_total",
			Help:      "Task attempts by result status.",
		}, []string{"system", "status"}),
		taskRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Failed attempts that were requeued.",
		}, []string{"system"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_execution_seconds",
			Help:      "Portal executor wall time per attempt.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"system"}),
		vaultOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vault_operations_total",
			Help:      "Vault operations by outcome.",
		}, []string{"op", "outcome"}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Engine lifecycle events published.",
		}, []string{"type"}),
	}

	r.registry.MustRegister(
		r.queueDepth, r.tasksQueued, r.taskOutcomes, r.taskRetries,
		r.taskDuration, r.vaultOps, r.eventsEmitted,
		collectors.NewGoCollector(),
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// The methods below are nil-safe so components can run without metrics.

func (r *Recorder) SetQueueDepth(n int) {
	if r == nil {
		return
	}
	r.queueDepth.Set(float64(n))
}

func (r *Recorder) TaskQueued(system, priority string) {
	if r == nil {
		return
	}
	r.tasksQueued.WithLabelValues(system, priority).Inc()
}

func (r *Recorder) TaskAttempt(system, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.taskOutcomes.WithLabelValues(system, status).Inc()
	r.taskDuration.WithLabelValues(system).Observe(elapsed.Seconds())
}

func (r *Recorder) TaskRetried(system string) {
	if r == nil {
		return
	}
	r.taskRetries.WithLabelValues(system).Inc()
}

func (r *Recorder) EventEmitted(eventType string) {
	if r == nil {
		return
	}
	r.eventsEmitted.WithLabelValues(eventType).Inc()
}

// VaultOperation implements vault.OpsRecorder.
func (r *Recorder) VaultOperation(op string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.vaultOps.WithLabelValues(op, outcome).Inc()
}
