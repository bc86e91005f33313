/*
Package log provides structured logging for the task daemon using zerolog.

The package wraps zerolog to provide JSON or console logging with
component-specific child loggers, a configurable level, and a small set of
package-level helpers for one-off messages. All logs include timestamps.

# Usage

Initializing the logger:

	import "github.com/jdtzmn/port/pkg/log"

	// JSON output (daemon)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (interactive CLI)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("daemon starting")
	log.Error("adapter prepare failed")

Structured logging:

	log.Logger.Info().
		Str("task_id", task.ID).
		Str("branch", task.Branch).
		Msg("task queued")

Component loggers:

	daemonLog := log.WithComponent("daemon")
	daemonLog.Info().Msg("tick")

	taskLog := log.WithTaskID(task.ID)
	taskLog.Error().Err(err).Msg("worker exited unexpectedly")

# Integration points

This package is used by:

  - pkg/daemon: the per-tick loop and signal handling
  - pkg/config: live-reload events from the config watcher
  - pkg/hostservice: host auxiliary process lifecycle
  - pkg/subscriber: dispatch batches and handler errors
  - pkg/adapter: the worker liveness probe
  - pkg/workerentry: the worker-mode task run
  - cmd/port: logger setup and CLI messages

# Security

Never log secret values, tokens, or full environment contents. Branch names,
task ids, and repo paths are safe to log and used throughout for
correlation.
*/
package log
