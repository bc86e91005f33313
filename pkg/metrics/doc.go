/*
Package metrics defines the Prometheus collectors used by the task daemon
and the routing reconciler.

Metrics are registered against prometheus.DefaultRegisterer at package init,
the same pattern the rest of the ecosystem uses for single-binary daemons.
This spec has no HTTP API surface to scrape from, so there is no
promhttp.Handler here; instead WriteSnapshot renders the current registry in
the Prometheus text exposition format, which the daemon calls on SIGUSR1 to
write a point-in-time snapshot file for local inspection.

# Usage

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDuration(metrics.DaemonTickDuration)

	metrics.ActiveTasks.WithLabelValues("running").Set(1)
	metrics.TasksFinishedTotal.WithLabelValues("completed").Inc()

	f, _ := os.Create("metrics.snapshot")
	defer f.Close()
	metrics.WriteSnapshot(f)
*/
package metrics
