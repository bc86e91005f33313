package adapter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jdtzmn/port/pkg/jobs"
	"github.com/jdtzmn/port/pkg/log"
	"github.com/jdtzmn/port/pkg/porterr"
	"github.com/jdtzmn/port/pkg/types"
)

const (
	EnvTaskID   = "PORT_TASK_ID"
	EnvRepo     = "PORT_REPO"
	EnvWorktree = "PORT_WORKTREE"
)

// Name identifies this adapter in Task.Adapter.
const Name = "local"

// LocalAdapter runs a task as a detached worker subprocess of the same
// binary, re-invoked in worker mode, against a dedicated git worktree.
type LocalAdapter struct {
	// Repo is the absolute path of the repository the task operates on.
	Repo string
	// BaseBranch is the branch new worktrees are created from.
	BaseBranch string
	// Executable overrides the worker binary path; empty means
	// os.Executable().
	Executable string
}

var _ Adapter = (*LocalAdapter)(nil)

// Capabilities reports what this adapter actually supports, for storing
// onto a task at creation time (§4.G: "Capabilities are authoritative
// metadata and must be reflected into the task's capabilities field when
// stored").
func (a *LocalAdapter) Capabilities() types.Capabilities {
	return types.Capabilities{
		AttachHandoff:     true,
		ResumeToken:       false,
		Transcript:        true,
		FailedSnapshot:    true,
		CheckpointRestore: false,
	}
}

func (a *LocalAdapter) executable() (string, error) {
	if a.Executable != "" {
		return a.Executable, nil
	}
	path, err := os.Executable()
	if err != nil {
		return "", porterr.New(porterr.KindAdapterFailure, "adapter.LocalAdapter.executable", err)
	}
	return path, nil
}

func (a *LocalAdapter) artifactsDir(task *types.Task) string {
	return filepath.Join(a.Repo, ".port", "jobs", "artifacts", task.ID)
}

func (a *LocalAdapter) Prepare(ctx context.Context, task *types.Task) error {
	path, err := addWorktree(ctx, a.Repo, task.ID, a.BaseBranch)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.artifactsDir(task), 0o755); err != nil {
		return porterr.New(porterr.KindPreconditionMissing, "adapter.LocalAdapter.Prepare", err)
	}
	now := time.Now()
	task.Runtime.WorktreePath = path
	task.Runtime.PreparedAt = &now
	return nil
}

func (a *LocalAdapter) Start(ctx context.Context, task *types.Task) error {
	if task.Runtime.WorktreePath == "" {
		return porterr.New(porterr.KindPreconditionMissing, "adapter.LocalAdapter.Start", fmt.Errorf("task %s was never prepared", task.ID))
	}

	bin, err := a.executable()
	if err != nil {
		return err
	}

	stdout, err := os.Create(filepath.Join(a.artifactsDir(task), "stdout.log"))
	if err != nil {
		return porterr.New(porterr.KindAdapterFailure, "adapter.LocalAdapter.Start", err)
	}
	stderr, err := os.Create(filepath.Join(a.artifactsDir(task), "stderr.log"))
	if err != nil {
		stdout.Close()
		return porterr.New(porterr.KindAdapterFailure, "adapter.LocalAdapter.Start", err)
	}

	cmd := exec.Command(bin, "worker", "--task", task.ID)
	cmd.Dir = task.Runtime.WorktreePath
	cmd.Env = append(os.Environ(),
		EnvTaskID+"="+task.ID,
		EnvRepo+"="+a.Repo,
		EnvWorktree+"="+task.Runtime.WorktreePath,
	)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return porterr.New(porterr.KindAdapterFailure, "adapter.LocalAdapter.Start", err)
	}

	// The worker is detached; release our handles and let it run.
	go func() {
		_ = cmd.Wait()
		stdout.Close()
		stderr.Close()
	}()

	now := time.Now()
	task.Runtime.WorkerPID = cmd.Process.Pid
	task.Runtime.StartedAt = &now
	task.Runtime.RunAttempt++
	task.Runtime.RunLog = append(task.Runtime.RunLog, types.RunAttemptRecord{
		Attempt:   task.Runtime.RunAttempt,
		StartedAt: now,
	})
	return nil
}

func (a *LocalAdapter) Status(ctx context.Context, task *types.Task) (types.TaskStatus, error) {
	if !task.Status.NeedsLivenessProbe() {
		return task.Status, nil
	}
	if isAlive(task.Runtime.WorkerPID) {
		return task.Status, nil
	}
	if index, err := jobs.LoadIndex(a.Repo); err == nil {
		for _, t := range index.Tasks {
			if t.ID == task.ID && t.Status.IsTerminal() {
				return t.Status, nil
			}
		}
	}
	log.WithTaskID(task.ID).Warn().Msg("worker process not alive during liveness probe")
	return types.TaskStatusFailed, nil
}

func (a *LocalAdapter) Cancel(ctx context.Context, task *types.Task) error {
	if task.Runtime.WorkerPID <= 0 {
		return nil
	}
	process, err := os.FindProcess(task.Runtime.WorkerPID)
	if err != nil {
		return nil
	}
	_ = process.Signal(syscall.SIGTERM)
	return nil
}

func (a *LocalAdapter) Cleanup(ctx context.Context, task *types.Task) error {
	return removeWorktree(ctx, a.Repo, task.ID)
}

func (a *LocalAdapter) Checkpoint(ctx context.Context, task *types.Task) (*types.CheckpointRef, error) {
	return nil, porterr.New(porterr.KindPreconditionMissing, "adapter.LocalAdapter.Checkpoint",
		fmt.Errorf("adapter %q does not support checkpoints", task.Adapter))
}

func (a *LocalAdapter) Restore(ctx context.Context, task *types.Task, checkpoint types.CheckpointRef) error {
	return porterr.New(porterr.KindPreconditionMissing, "adapter.LocalAdapter.Restore",
		fmt.Errorf("adapter %q does not support restore", task.Adapter))
}

// RequestHandoff signals the worker to pause for interactive attach. The
// local adapter uses SIGUSR1 as the pause signal; a worker that does not
// trap it simply keeps running, and the caller's capability check is what
// prevents this from being invoked against such a task.
func (a *LocalAdapter) RequestHandoff(ctx context.Context, task *types.Task) error {
	if !task.Capabilities.AttachHandoff {
		return porterr.New(porterr.KindPreconditionMissing, "adapter.LocalAdapter.RequestHandoff",
			fmt.Errorf("task %s does not support attach handoff", task.ID))
	}
	process, err := os.FindProcess(task.Runtime.WorkerPID)
	if err != nil {
		return porterr.New(porterr.KindAdapterFailure, "adapter.LocalAdapter.RequestHandoff", err)
	}
	return process.Signal(syscall.SIGUSR1)
}

// AttachContext returns the worktree path as the session handle an
// interactive client shells into.
func (a *LocalAdapter) AttachContext(ctx context.Context, task *types.Task) (string, error) {
	if task.Runtime.WorktreePath == "" {
		return "", porterr.New(porterr.KindPreconditionMissing, "adapter.LocalAdapter.AttachContext",
			fmt.Errorf("task %s has no worktree", task.ID))
	}
	return task.Runtime.WorktreePath, nil
}

// ResumeFromAttach signals the worker to resume unattended execution.
func (a *LocalAdapter) ResumeFromAttach(ctx context.Context, task *types.Task) error {
	process, err := os.FindProcess(task.Runtime.WorkerPID)
	if err != nil {
		return porterr.New(porterr.KindAdapterFailure, "adapter.LocalAdapter.ResumeFromAttach", err)
	}
	return process.Signal(syscall.SIGUSR2)
}

func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
