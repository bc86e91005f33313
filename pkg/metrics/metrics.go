// Package metrics exposes Prometheus collectors for the task daemon and
// routing reconciler.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

var (
	// DaemonTickDuration times one daemon loop iteration.
	DaemonTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "port_daemon_tick_duration_seconds",
			Help:    "Time taken for one task daemon loop iteration",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ActiveTasks reports the current count of active tasks by status.
	ActiveTasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "port_active_tasks",
			Help: "Number of active tasks by status",
		},
		[]string{"status"},
	)

	// QueueDepth reports the number of queued-but-blocked tasks.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "port_queue_blocked_tasks",
			Help: "Number of queued tasks currently blocked by a branch lock",
		},
	)

	// TasksStartedTotal counts tasks the daemon has started and marked running.
	TasksStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "port_tasks_started_total",
			Help: "Total number of tasks started by the daemon",
		},
	)

	// TasksFinishedTotal counts tasks reaching a terminal status, by status.
	TasksFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "port_tasks_finished_total",
			Help: "Total number of tasks reaching a terminal status",
		},
		[]string{"status"},
	)

	// ReconciliationDuration times one routing-config reconcile cycle.
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "port_routing_reconcile_duration_seconds",
			Help:    "Time taken for a routing config reconcile cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReconciliationCyclesTotal counts routing reconcile cycles that changed state.
	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "port_routing_reconcile_changed_total",
			Help: "Total number of routing reconcile cycles that wrote new config",
		},
	)

	// HostServicesTotal reports the count of live host auxiliary services.
	HostServicesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "port_host_services_total",
			Help: "Number of registered host auxiliary services",
		},
	)

	// SubscriberDispatchDuration times one subscriber dispatch batch.
	SubscriberDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "port_subscriber_dispatch_duration_seconds",
			Help:    "Time taken to dispatch one batch of events to a consumer",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"consumer"},
	)
)

func init() {
	prometheus.MustRegister(
		DaemonTickDuration,
		ActiveTasks,
		QueueDepth,
		TasksStartedTotal,
		TasksFinishedTotal,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		HostServicesTotal,
		SubscriberDispatchDuration,
	)
}

// Timer is a helper for timing operations against a histogram.
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

// ObserveDurationVec records the elapsed duration to a histogram vector.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// WriteSnapshot gathers the current metric families from the default
// registry and writes them in the Prometheus text exposition format to w.
// The daemon calls this on SIGUSR1 so operators without a scrape target can
// still inspect counters locally, since this spec has no HTTP API surface.
func WriteSnapshot(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
