package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker/dispatcher metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetwork_workers_total",
			Help: "Total number of configured workers by liveness",
		},
		[]string{"status"}, // "live" or "dead"
	)

	DispatchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwork_dispatch_queue_depth",
			Help: "Number of requests currently queued in the dispatcher",
		},
	)

	DispatchHandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetwork_dispatch_handler_duration_seconds",
			Help:    "Time a dispatcher handler took to run, by request kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	WorkerDeathsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwork_worker_deaths_total",
			Help: "Total number of WORKER_DIED events processed",
		},
	)

	// Task lifecycle metrics
	TasksSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwork_tasks_submitted_total",
			Help: "Total number of tasks submitted",
		},
	)

	TasksFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwork_tasks_failed_total",
			Help: "Total number of tasks whose executor raised an exception",
		},
	)

	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetwork_task_duration_seconds",
			Help:    "Wall-clock time from task submit to done=true",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Coordination primitive metrics
	PrimitivesRegistered = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetwork_primitives_registered",
			Help: "Number of registered coordination primitives by kind",
		},
		[]string{"kind"}, // event, lock, semaphore, queue, map
	)

	PrimitiveWaitersBlocked = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetwork_primitive_waiters_blocked",
			Help: "Current number of blocked waiters by primitive kind",
		},
		[]string{"kind"},
	)

	// Transport metrics
	TransportBytesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwork_transport_bytes_sent_total",
			Help: "Total number of framed payload bytes sent",
		},
	)

	TransportFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwork_transport_failures_total",
			Help: "Total transport-layer failures by kind",
		},
		[]string{"kind"}, // framing, auth, timeout
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(DispatchQueueDepth)
	prometheus.MustRegister(DispatchHandlerDuration)
	prometheus.MustRegister(WorkerDeathsTotal)
	prometheus.MustRegister(TasksSubmittedTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(PrimitivesRegistered)
	prometheus.MustRegister(PrimitiveWaitersBlocked)
	prometheus.MustRegister(TransportBytesSent)
	prometheus.MustRegister(TransportFailuresTotal)
}

// Handler returns the Prometheus HTTP handler for a debug/metrics endpoint.
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
