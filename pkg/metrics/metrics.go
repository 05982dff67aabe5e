package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Stats Counter metrics, mirroring the node's lifetime tallies.
	ComputedTasksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskcomputer_computed_tasks_total",
			Help: "Total number of subtasks computed successfully",
		},
	)

	TasksWithErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskcomputer_tasks_with_errors_total",
			Help: "Total number of subtasks that finished with an error",
		},
	)

	TasksWithTimeoutTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskcomputer_tasks_with_timeout_total",
			Help: "Total number of subtasks that were killed for exceeding their timeout",
		},
	)

	TasksRequestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskcomputer_tasks_requested_total",
			Help: "Total number of task requests sent to the task server",
		},
	)

	// CurrentComputationsGauge tracks the live worker count, the registry's
	// in-memory equivalent of current_computations.
	CurrentComputationsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskcomputer_current_computations",
			Help: "Number of subtasks currently being computed",
		},
	)

	StateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskcomputer_state",
			Help: "1 if the computer is currently in the named state, 0 otherwise",
		},
		[]string{"state"},
	)

	// Resource transfer and container operation durations.
	ResourceWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskcomputer_resource_wait_duration_seconds",
			Help:    "Time spent waiting for a subtask's resources to arrive",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainerPullDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskcomputer_container_pull_duration_seconds",
			Help:    "Time taken to pull a worker image",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainerStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskcomputer_container_start_duration_seconds",
			Help:    "Time taken to start a container worker",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainerStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskcomputer_container_stop_duration_seconds",
			Help:    "Time taken to stop a container worker",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Supervisor sweep metrics, grounded on the reconciler's per-cycle timer.
	SupervisorSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskcomputer_supervisor_sweep_duration_seconds",
			Help:    "Time taken for one supervisor timeout sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	SupervisorSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskcomputer_supervisor_sweeps_total",
			Help: "Total number of supervisor sweeps completed",
		},
	)

	// ComputationTimeSpent records the paid time for every finished
	// subtask (the task header's subtask timeout, or the attempt's
	// wall-clock time when no header is known), labeled by outcome.
	ComputationTimeSpent = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskcomputer_computation_time_spent_seconds",
			Help:    "Paid time reported for a finished subtask, labeled by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// AdminAPIRequestsTotal and AdminAPIRequestDuration instrument the
	// admin HTTP API the same way warren instruments its cluster API.
	AdminAPIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskcomputer_admin_api_requests_total",
			Help: "Total number of admin API requests by method and status",
		},
		[]string{"method", "status"},
	)

	AdminAPIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskcomputer_admin_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		ComputedTasksTotal,
		TasksWithErrorsTotal,
		TasksWithTimeoutTotal,
		TasksRequestedTotal,
		CurrentComputationsGauge,
		StateGauge,
		ResourceWaitDuration,
		ContainerPullDuration,
		ContainerStartDuration,
		ContainerStopDuration,
		SupervisorSweepDuration,
		SupervisorSweepsTotal,
		ComputationTimeSpent,
		AdminAPIRequestsTotal,
		AdminAPIRequestDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
