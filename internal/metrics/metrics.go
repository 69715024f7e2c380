package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpequegn/ttsdispatch/internal/model"
)

// Collector collects and exposes the dispatcher's Prometheus metrics.
type Collector struct {
	tasksDispatched *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	retries         *prometheus.CounterVec

	dispatchLatency *prometheus.HistogramVec

	inFlight         *prometheus.GaugeVec
	adaptiveInterval *prometheus.GaugeVec
}

// NewCollector builds a Collector and registers its metrics against reg.
// Pass prometheus.NewRegistry() in tests to avoid the global default
// registry's duplicate-registration panics across test runs; pass
// prometheus.DefaultRegisterer in production.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tasksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttsdispatch_tasks_dispatched_total",
			Help: "Total number of tasks launched against an upstream worker.",
		}, []string{"batch_id"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttsdispatch_task_outcomes_total",
			Help: "Total number of task settlements, by outcome kind.",
		}, []string{"batch_id", "worker", "outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ttsdispatch_retries_total",
			Help: "Total number of non-success task settlements, by failure class.",
		}, []string{"batch_id", "class"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ttsdispatch_task_duration_seconds",
			Help:    "Upstream TTS request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"batch_id", "outcome"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ttsdispatch_worker_in_flight",
			Help: "Current number of in-flight requests on a worker.",
		}, []string{"batch_id", "worker"}),
		adaptiveInterval: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ttsdispatch_adaptive_interval_seconds",
			Help: "Current adaptive dispatch interval for a batch.",
		}, []string{"batch_id"}),
	}

	reg.MustRegister(
		c.tasksDispatched,
		c.outcomes,
		c.retries,
		c.dispatchLatency,
		c.inFlight,
		c.adaptiveInterval,
	)
	return c
}

// RecordOutcome implements executor.MetricsRecorder: it counts the
// settlement by kind and observes its elapsed duration.
func (c *Collector) RecordOutcome(batchID, workerName string, outcome model.Outcome) {
	c.outcomes.WithLabelValues(batchID, workerName, outcome.Kind.String()).Inc()
	c.dispatchLatency.WithLabelValues(batchID, outcome.Kind.String()).Observe(outcome.Elapsed.Seconds())
	if class := outcome.Kind.FailureClass(); class != model.FailureNone {
		c.retries.WithLabelValues(batchID, class.String()).Inc()
	}
}

// SetInFlight implements executor.MetricsRecorder.
func (c *Collector) SetInFlight(batchID, workerName string, n int) {
	c.inFlight.WithLabelValues(batchID, workerName).Set(float64(n))
}

// SetAdaptiveInterval implements executor.MetricsRecorder.
func (c *Collector) SetAdaptiveInterval(batchID string, seconds float64) {
	c.adaptiveInterval.WithLabelValues(batchID).Set(seconds)
}

// RecordDispatch increments the per-batch dispatched-task counter; called
// by the dispatcher's pairing loop on every launch.
func (c *Collector) RecordDispatch(batchID string) {
	c.tasksDispatched.WithLabelValues(batchID).Inc()
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
