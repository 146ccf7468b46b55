// Package metrics exposes FuzzHive's Prometheus metrics: task throughput,
// classifier output, broker latency, and worker health.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fuzzhive_tasks_created_total",
			Help: "Total number of scan tasks created",
		},
	)

	TasksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzhive_tasks_completed_total",
			Help: "Total number of scan tasks completed, by final status",
		},
		[]string{"status"},
	)

	TaskFanOutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fuzzhive_task_fanout_duration_seconds",
			Help:    "Time from create_task to every worker queue receiving its message",
			Buckets: prometheus.DefBuckets,
		},
	)

	FindingsBySeverity = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzhive_findings_total",
			Help: "Total number of findings emitted by the classifier, by severity",
		},
		[]string{"severity"},
	)

	RecordsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fuzzhive_records_dropped_total",
			Help: "Total number of raw fuzzer records the classifier dropped",
		},
	)

	BrokerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fuzzhive_broker_operation_duration_seconds",
			Help:    "Broker round-trip latency by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	BrokerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzhive_broker_errors_total",
			Help: "Total number of broker operation failures, by operation",
		},
		[]string{"operation"},
	)

	WorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fuzzhive_workers_active",
			Help: "Number of workers with a fresh heartbeat",
		},
	)

	WorkersOffline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fuzzhive_workers_offline",
			Help: "Number of registered workers with a stale or missing heartbeat",
		},
	)

	FuzzerInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzhive_fuzzer_invocations_total",
			Help: "Total number of fuzzer binary invocations, by outcome",
		},
		[]string{"outcome"},
	)

	FuzzerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fuzzhive_fuzzer_duration_seconds",
			Help:    "Wall-clock duration of fuzzer invocations",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s .. 8192s (~2h17m)
		},
	)
)

func init() {
	prometheus.MustRegister(TasksCreated)
	prometheus.MustRegister(TasksCompleted)
	prometheus.MustRegister(TaskFanOutDuration)
	prometheus.MustRegister(FindingsBySeverity)
	prometheus.MustRegister(RecordsDropped)
	prometheus.MustRegister(BrokerOperationDuration)
	prometheus.MustRegister(BrokerErrors)
	prometheus.MustRegister(WorkersActive)
	prometheus.MustRegister(WorkersOffline)
	prometheus.MustRegister(FuzzerInvocations)
	prometheus.MustRegister(FuzzerDuration)
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

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with
// labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
