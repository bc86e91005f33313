package workerentry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jdtzmn/port/pkg/jobs"
	"github.com/jdtzmn/port/pkg/log"
	"github.com/jdtzmn/port/pkg/porterr"
	"github.com/jdtzmn/port/pkg/types"
)

// metadata is written to artifacts/<taskId>/metadata.json on every exit
// path once the task has loaded, successful or not.
type metadata struct {
	TaskID     string     `json:"taskId"`
	Title      string     `json:"title"`
	Mode       string     `json:"mode"`
	Adapter    string     `json:"adapter"`
	Branch     string     `json:"branch,omitempty"`
	RunAttempt int        `json:"runAttempt"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	ExitCode   *int       `json:"exitCode,omitempty"`
}

// Run executes taskID to completion inside worktree, which must already be
// the process's current working directory (pkg/adapter.LocalAdapter.Start
// sets cmd.Dir to it). It returns a non-nil error only once every
// best-effort artifact/status write has already been attempted, so the
// caller's sole remaining job is to exit non-zero.
func Run(ctx context.Context, repo, taskID, worktree string) error {
	workerLog := log.WithTaskID(taskID)

	task, err := loadTask(repo, taskID)
	if err != nil {
		workerLog.Error().Err(err).Msg("worker: task not found")
		return err
	}
	if err := os.MkdirAll(jobs.ArtifactsDir(repo, taskID), 0o755); err != nil {
		workerLog.Warn().Err(err).Msg("worker: failed to create artifacts directory")
	}

	if err := jobs.UpdateTaskStatus(repo, taskID, types.TaskStatusRunning); err != nil {
		workerLog.Error().Err(err).Msg("worker: failed to transition to running")
	}
	emitEvent(repo, taskID, "task.worker.started", "")
	fmt.Println("worker:started")

	meta := metadata{
		TaskID: task.ID, Title: task.Title, Mode: string(task.Mode), Adapter: task.Adapter,
		Branch: task.Branch, RunAttempt: task.Runtime.RunAttempt, StartedAt: time.Now(),
	}

	workErr := doWork(ctx, task, workerLog)

	now := time.Now()
	meta.FinishedAt = &now

	if task.Mode == types.TaskModeWrite {
		writePatchArtifact(repo, taskID, worktree, workerLog)
		writeCommitRefsArtifact(repo, taskID, worktree, workerLog)
	}

	if workErr != nil {
		fmt.Fprintln(os.Stderr, "worker:failed:", workErr)
		exitCode := 1
		meta.ExitCode = &exitCode
		writeMetadataArtifact(repo, taskID, meta, workerLog)

		if err := jobs.PatchTask(repo, taskID, func(t *types.Task) {
			t.Status = types.TaskStatusFailed
			t.UpdatedAt = now
			t.Runtime.FinishedAt = &now
			t.Runtime.LastExitCode = &exitCode
			t.Runtime.RetainedForDebug = true
		}); err != nil {
			workerLog.Error().Err(err).Msg("worker: failed to patch failed status")
		}
		emitEvent(repo, taskID, "task.worker.failed", workErr.Error())
		return workErr
	}

	exitCode := 0
	meta.ExitCode = &exitCode
	writeMetadataArtifact(repo, taskID, meta, workerLog)

	if err := jobs.PatchTask(repo, taskID, func(t *types.Task) {
		t.Status = types.TaskStatusCompleted
		t.UpdatedAt = now
		t.Runtime.FinishedAt = &now
		t.Runtime.LastExitCode = &exitCode
	}); err != nil {
		workerLog.Error().Err(err).Msg("worker: failed to patch completed status")
		return err
	}
	emitEvent(repo, taskID, "task.worker.finished", "")
	fmt.Println("worker:finished")
	return nil
}

func loadTask(repo, taskID string) (*types.Task, error) {
	index, err := jobs.LoadIndex(repo)
	if err != nil {
		return nil, err
	}
	for _, t := range index.Tasks {
		if t.ID == taskID {
			return t, nil
		}
	}
	return nil, porterr.New(porterr.KindPreconditionMissing, "workerentry.loadTask",
		fmt.Errorf("task %s not found in index", taskID))
}

// doWork is the deterministic work simulator: the core's contract for a
// worker is §4.K's lifecycle, not any particular agent behavior (spec §1
// explicitly scopes the concrete behavior of an individual worker type out
// of the core). It succeeds after a short fixed delay unless ctx is
// cancelled first, in which case it returns ctx.Err().
func doWork(ctx context.Context, task *types.Task, workerLog zerolog.Logger) error {
	workerLog.Info().Str("title", task.Title).Msg("worker: executing task")
	select {
	case <-time.After(50 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func emitEvent(repo, taskID, eventType, message string) {
	_ = jobs.AppendEvent(repo, types.TaskEvent{
		ID: uuid.NewString(), TaskID: taskID, Type: eventType, At: time.Now(), Message: message,
	})
}

func writeMetadataArtifact(repo, taskID string, meta metadata, workerLog zerolog.Logger) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		workerLog.Warn().Err(err).Msg("worker: failed to marshal metadata artifact")
		return
	}
	data = append(data, '\n')
	path := filepath.Join(jobs.ArtifactsDir(repo, taskID), "metadata.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		workerLog.Warn().Err(err).Msg("worker: failed to write metadata artifact")
	}
}

// writePatchArtifact captures uncommitted worktree changes. Best-effort:
// per §7, artifact writes must never block a status transition.
func writePatchArtifact(repo, taskID, worktree string, workerLog zerolog.Logger) {
	cmd := exec.Command("git", "diff", "--binary", "HEAD")
	cmd.Dir = worktree
	out, err := cmd.Output()
	if err != nil {
		workerLog.Warn().Err(err).Msg("worker: git diff failed, skipping changes.patch")
		return
	}
	if len(out) == 0 {
		return
	}
	path := filepath.Join(jobs.ArtifactsDir(repo, taskID), "changes.patch")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		workerLog.Warn().Err(err).Msg("worker: failed to write changes.patch")
	}
}

// writeCommitRefsArtifact records the commits on the worktree branch that
// are not on its upstream (@{u}..HEAD). A branch with no upstream, such as
// a freshly created port-task-<id> branch, records nothing.
func writeCommitRefsArtifact(repo, taskID, worktree string, workerLog zerolog.Logger) {
	cmd := exec.Command("git", "log", "--format=%H", "@{u}..HEAD")
	cmd.Dir = worktree
	out, err := cmd.Output()
	if err != nil {
		// No upstream configured for the task branch; nothing to record.
		return
	}
	refs := splitNonEmptyLines(string(out))
	if len(refs) == 0 {
		return
	}
	data, err := json.MarshalIndent(map[string][]string{"commits": refs}, "", "  ")
	if err != nil {
		workerLog.Warn().Err(err).Msg("worker: failed to marshal commit-refs.json")
		return
	}
	data = append(data, '\n')
	path := filepath.Join(jobs.ArtifactsDir(repo, taskID), "commit-refs.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		workerLog.Warn().Err(err).Msg("worker: failed to write commit-refs.json")
	}
}

func splitNonEmptyLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
