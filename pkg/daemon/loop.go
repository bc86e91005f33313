package daemon

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jdtzmn/port/pkg/adapter"
	"github.com/jdtzmn/port/pkg/jobs"
	"github.com/jdtzmn/port/pkg/log"
	"github.com/jdtzmn/port/pkg/metrics"
	"github.com/jdtzmn/port/pkg/types"
)

// Dispatcher delivers subscriber notifications for repo's event log. It is
// satisfied by pkg/subscriber.Dispatcher; the daemon loop only depends on
// this narrow interface so a dispatch failure stays in its own failure
// domain, independent of queue reconciliation.
type Dispatcher interface {
	Dispatch(repo string) error
}

// Options configures a Daemon.
type Options struct {
	Repo         string
	Adapter      adapter.Adapter
	Dispatcher   Dispatcher
	TickInterval time.Duration
	IdleTimeout  time.Duration
	TaskTimeout  time.Duration
}

// Daemon is the per-repository task scheduler loop.
type Daemon struct {
	opts Options
	id   string
}

// New constructs a Daemon, filling in default tick and idle intervals.
func New(opts Options) *Daemon {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 10 * time.Minute
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Minute
	}
	return &Daemon{opts: opts, id: uuid.NewString()}
}

// Run drives the tick loop until it is signaled to stop (SIGTERM/SIGINT) or
// the repo has had no active task for IdleTimeout. SIGUSR1 writes a
// point-in-time metrics snapshot without otherwise affecting the loop.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	daemonLog := log.WithComponent("daemon")

	state := &types.DaemonState{
		PID:         os.Getpid(),
		ID:          d.id,
		StartedAt:   time.Now(),
		HeartbeatAt: time.Now(),
		Status:      types.DaemonStatusStarting,
	}
	if err := writeState(d.opts.Repo, state); err != nil {
		return err
	}
	state.Status = types.DaemonStatusRunning
	daemonLog.Info().Msg("daemon started")

	ticker := time.NewTicker(d.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			state.Status = types.DaemonStatusStopping
			_ = writeState(d.opts.Repo, state)
			daemonLog.Info().Msg("daemon stopping")
			return nil

		case <-usr1:
			d.writeMetricsSnapshot(daemonLog)

		case <-ticker.C:
			idle := d.tick(daemonLog)
			state.HeartbeatAt = time.Now()
			if idle {
				if state.IdleSince == nil {
					now := time.Now()
					state.IdleSince = &now
				} else if time.Since(*state.IdleSince) > d.opts.IdleTimeout {
					_ = writeState(d.opts.Repo, state)
					daemonLog.Info().Msg("idle timeout reached, shutting down")
					return nil
				}
			} else {
				state.IdleSince = nil
			}
			_ = writeState(d.opts.Repo, state)
		}
	}
}

func (d *Daemon) writeMetricsSnapshot(daemonLog zerolog.Logger) {
	path := filepath.Join(runtimeDir(d.opts.Repo), "metrics.snapshot")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		daemonLog.Error().Err(err).Msg("failed to create runtime dir for metrics snapshot")
		return
	}
	f, err := os.Create(path)
	if err != nil {
		daemonLog.Error().Err(err).Msg("failed to create metrics snapshot file")
		return
	}
	defer f.Close()
	if err := metrics.WriteSnapshot(f); err != nil {
		daemonLog.Error().Err(err).Msg("failed to write metrics snapshot")
	}
}

// tick runs one scheduling pass: reap workers that stopped without
// recording their own terminal status, start at most one runnable queued
// task (the oldest), and dispatch subscriber notifications. It reports
// whether the repo currently has no active task.
//
// §4.H and §5 both require that no operation hold index.lock across a
// subprocess spawn. reapDeadWorkers and startRunnableTasks therefore only
// ever read the index via jobs.LoadIndex (no lock) to decide what to do,
// run any adapter calls (which shell out to git/spawn processes) with no
// lock held, and persist the outcome afterward through jobs.PatchTask —
// each of which is its own short-lived index.lock acquisition.
func (d *Daemon) tick(daemonLog zerolog.Logger) bool {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DaemonTickDuration)

	index, err := jobs.LoadIndex(d.opts.Repo)
	if err != nil {
		daemonLog.Error().Err(err).Msg("tick: load index failed")
		return false
	}

	d.reapDeadWorkers(index, daemonLog)
	d.startRunnableTasks(index, daemonLog)

	// Re-read after the mutations above to report accurate metrics and
	// idle state off of what actually landed on disk.
	index, err = jobs.LoadIndex(d.opts.Repo)
	if err != nil {
		daemonLog.Error().Err(err).Msg("tick: reload index failed")
		return false
	}

	anyActive := false
	blocked := 0
	counts := map[types.TaskStatus]int{}
	for _, task := range index.Tasks {
		if !task.Status.IsActive() {
			continue
		}
		anyActive = true
		if task.Status == types.TaskStatusQueued && task.Queue.BlockedByTaskID != "" {
			blocked++
		}
		counts[task.Status]++
	}
	metrics.ActiveTasks.Reset()
	for status, count := range counts {
		metrics.ActiveTasks.WithLabelValues(string(status)).Set(float64(count))
	}
	metrics.QueueDepth.Set(float64(blocked))

	if d.opts.Dispatcher != nil {
		if err := d.opts.Dispatcher.Dispatch(d.opts.Repo); err != nil {
			daemonLog.Error().Err(err).Msg("tick: subscriber dispatch failed")
		}
	}

	return !anyActive
}

// reapDeadWorkers implements §4.H step 2, operating on a read-only index
// snapshot. Two independent conditions feed the same disposal path: a task
// the daemon is still watching whose worker has stopped (probed here), and
// a task whose own worker already patched its terminal status directly
// (the worker owns that write; the daemon only discovers it on the next
// tick and must still clean up or retain).
func (d *Daemon) reapDeadWorkers(index *types.TaskIndex, daemonLog zerolog.Logger) {
	for _, task := range index.Tasks {
		if task.Status.NeedsLivenessProbe() {
			d.reapWatchedTask(task, daemonLog)
			continue
		}
		if task.Status.IsTerminal() {
			d.disposeTerminatedTask(task, daemonLog)
		}
	}
}

// reapWatchedTask probes (or times out) a task from the read-only
// snapshot, persisting any resulting transition via jobs.PatchTask rather
// than mutating the snapshot's index in place.
func (d *Daemon) reapWatchedTask(task *types.Task, daemonLog zerolog.Logger) {
	if task.Runtime.TimeoutAt != nil && time.Now().After(*task.Runtime.TimeoutAt) {
		d.timeoutTask(task, daemonLog)
		return
	}

	status, err := d.opts.Adapter.Status(context.Background(), task)
	if err != nil {
		daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("adapter status check failed")
		return
	}
	if status == task.Status {
		return
	}

	now := time.Now()
	previous := task.Status
	terminal := status.IsTerminal()

	if err := jobs.PatchTask(d.opts.Repo, task.ID, func(t *types.Task) {
		t.Status = status
		t.UpdatedAt = now
		if terminal {
			t.Runtime.FinishedAt = &now
		}
	}); err != nil {
		daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("failed to persist status transition")
		return
	}
	if !terminal {
		return
	}

	metrics.TasksFinishedTotal.WithLabelValues(string(status)).Inc()
	if status == types.TaskStatusFailed && previous.NeedsLivenessProbe() {
		// The worker process died without itself patching a terminal
		// status; the adapter's liveness probe is what discovered this.
		_ = jobs.AppendEvent(d.opts.Repo, types.TaskEvent{
			ID: uuid.NewString(), TaskID: task.ID, Type: "task.worker.crashed", At: now,
			Message: "worker exited unexpectedly",
		})
	}

	// Reflect the just-persisted transition onto the local copy so
	// disposeTerminatedTask's status switch and its own field checks see
	// current state without needing another read.
	task.Status = status
	task.Runtime.FinishedAt = &now
	d.disposeTerminatedTask(task, daemonLog)
}

func (d *Daemon) timeoutTask(task *types.Task, daemonLog zerolog.Logger) {
	if err := d.opts.Adapter.Cancel(context.Background(), task); err != nil {
		daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("cancel on timeout failed")
	}
	now := time.Now()
	if err := jobs.PatchTask(d.opts.Repo, task.ID, func(t *types.Task) {
		t.Status = types.TaskStatusTimeout
		t.UpdatedAt = now
		t.Runtime.FinishedAt = &now
		t.Runtime.RetainedForDebug = true
	}); err != nil {
		daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("failed to persist timeout")
		return
	}
	metrics.TasksFinishedTotal.WithLabelValues(string(types.TaskStatusTimeout)).Inc()
	_ = jobs.AppendEvent(d.opts.Repo, types.TaskEvent{
		ID: uuid.NewString(), TaskID: task.ID, Type: "task.worker.timeout", At: now,
		Message: "task exceeded its timeout",
	})
}

// disposeTerminatedTask implements the per-status branch of §4.H step 2.
// It is safe to call on every tick: a completed task only gets one cleanup
// attempt's worth of side effects per tick, but stops retrying once
// CleanedAt is set; a retained task only emits its one retained event.
// Adapter.Cleanup runs with no lock held; the outcome is persisted via
// jobs.PatchTask afterward.
func (d *Daemon) disposeTerminatedTask(task *types.Task, daemonLog zerolog.Logger) {
	switch task.Status {
	case types.TaskStatusCompleted:
		if task.Runtime.CleanedAt != nil {
			return
		}
		if err := d.opts.Adapter.Cleanup(context.Background(), task); err != nil {
			daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("cleanup failed")
			_ = jobs.AppendEvent(d.opts.Repo, types.TaskEvent{
				ID: uuid.NewString(), TaskID: task.ID, Type: "task.worker.cleanup_failed", At: time.Now(),
				Message: err.Error(),
			})
			return
		}
		now := time.Now()
		if err := jobs.PatchTask(d.opts.Repo, task.ID, func(t *types.Task) {
			t.Runtime.CleanedAt = &now
			t.Runtime.RetainedForDebug = false
		}); err != nil {
			daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("failed to persist cleanup")
			return
		}
		_ = jobs.AppendEvent(d.opts.Repo, types.TaskEvent{
			ID: uuid.NewString(), TaskID: task.ID, Type: "task.worker.cleaned", At: now,
		})

	case types.TaskStatusFailed, types.TaskStatusCancelled, types.TaskStatusTimeout:
		if task.Runtime.RetainedForDebug {
			return
		}
		now := time.Now()
		if err := jobs.PatchTask(d.opts.Repo, task.ID, func(t *types.Task) {
			if t.Runtime.FinishedAt == nil {
				t.Runtime.FinishedAt = &now
			}
			t.Runtime.RetainedForDebug = true
		}); err != nil {
			daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("failed to persist retained state")
			return
		}
		_ = jobs.AppendEvent(d.opts.Repo, types.TaskEvent{
			ID: uuid.NewString(), TaskID: task.ID, Type: "task.worker.retained", At: time.Now(),
			Message: "worktree retained for debugging",
		})

	case types.TaskStatusCleaned:
		// Already fully disposed; nothing in this loop moves a task to
		// cleaned, and such a task needs no further disposal.
	}
}

// startRunnableTasks implements §4.H step 3: start at most one runnable
// queued task per tick, oldest first, regardless of how many lock groups
// have a runnable head. Prepare and Start run with no lock held (each
// shells out to git and/or spawns the worker process); every resulting
// field change is persisted afterward through jobs.PatchTask.
func (d *Daemon) startRunnableTasks(index *types.TaskIndex, daemonLog zerolog.Logger) {
	var next *types.Task
	for _, task := range jobs.RunnableTasks(index) {
		if task.Status != types.TaskStatusQueued {
			continue
		}
		if next == nil || task.CreatedAt.Before(next.CreatedAt) ||
			(task.CreatedAt.Equal(next.CreatedAt) && task.ID < next.ID) {
			next = task
		}
	}
	if next == nil {
		return
	}
	task := next

	preparingAt := time.Now()
	if err := jobs.PatchTask(d.opts.Repo, task.ID, func(t *types.Task) {
		t.Status = types.TaskStatusPreparing
		t.UpdatedAt = preparingAt
	}); err != nil {
		daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("failed to mark task preparing")
		return
	}
	task.Status = types.TaskStatusPreparing

	if err := d.opts.Adapter.Prepare(context.Background(), task); err != nil {
		daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("prepare failed")
		d.failStartingTask(task, err, daemonLog)
		return
	}

	preparedAt := task.Runtime.PreparedAt
	worktreePath := task.Runtime.WorktreePath
	if err := jobs.PatchTask(d.opts.Repo, task.ID, func(t *types.Task) {
		t.Runtime.PreparedAt = preparedAt
		t.Runtime.WorktreePath = worktreePath
	}); err != nil {
		daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("failed to persist prepared state")
		return
	}
	_ = jobs.AppendEvent(d.opts.Repo, types.TaskEvent{
		ID: uuid.NewString(), TaskID: task.ID, Type: "task.worker.prepared", At: time.Now(),
	})

	if err := d.opts.Adapter.Start(context.Background(), task); err != nil {
		daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("start failed")
		d.failStartingTask(task, err, daemonLog)
		return
	}

	now := time.Now()
	timeoutAt := now.Add(d.opts.TaskTimeout)
	workerPID := task.Runtime.WorkerPID
	startedAt := task.Runtime.StartedAt
	runAttempt := task.Runtime.RunAttempt
	runLog := task.Runtime.RunLog
	if err := jobs.PatchTask(d.opts.Repo, task.ID, func(t *types.Task) {
		t.Status = types.TaskStatusRunning
		t.UpdatedAt = now
		t.Runtime.WorkerPID = workerPID
		t.Runtime.StartedAt = startedAt
		t.Runtime.RunAttempt = runAttempt
		t.Runtime.RunLog = runLog
		t.Runtime.TimeoutAt = &timeoutAt
	}); err != nil {
		daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("failed to persist running state")
		return
	}
	metrics.TasksStartedTotal.Inc()
	_ = jobs.AppendEvent(d.opts.Repo, types.TaskEvent{
		ID: uuid.NewString(), TaskID: task.ID, Type: "task.worker.started", At: now,
	})
}

// failStartingTask marks a task that failed to prepare or start as failed
// and retained for debugging.
func (d *Daemon) failStartingTask(task *types.Task, causeErr error, daemonLog zerolog.Logger) {
	now := time.Now()
	if err := jobs.PatchTask(d.opts.Repo, task.ID, func(t *types.Task) {
		t.Status = types.TaskStatusFailed
		t.UpdatedAt = now
		t.Runtime.FinishedAt = &now
		t.Runtime.RetainedForDebug = true
	}); err != nil {
		daemonLog.Error().Err(err).Str("task_id", task.ID).Msg("failed to persist failed state")
		return
	}
	_ = jobs.AppendEvent(d.opts.Repo, types.TaskEvent{
		ID: uuid.NewString(), TaskID: task.ID, Type: "task.failed", At: now,
		Message: causeErr.Error(),
	})
}
