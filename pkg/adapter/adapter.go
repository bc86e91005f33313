package adapter

import (
	"context"

	"github.com/jdtzmn/port/pkg/types"
)

// Adapter drives a single task through prepare/start/observe/cleanup and,
// for adapters that advertise the relevant capability, checkpoint/restore
// and interactive attach/resume.
type Adapter interface {
	// Prepare creates the isolated workspace (worktree) the task will run
	// in, without starting any work yet.
	Prepare(ctx context.Context, task *types.Task) error

	// Start launches the worker process for task, which has already been
	// prepared.
	Start(ctx context.Context, task *types.Task) error

	// Status reports the worker's observed status: Running while the
	// worker process is alive, otherwise the terminal status the worker
	// recorded (or Failed, if the worker died without recording one).
	Status(ctx context.Context, task *types.Task) (types.TaskStatus, error)

	// Cancel requests the worker stop. It is non-blocking: callers poll
	// Status for the resulting terminal transition.
	Cancel(ctx context.Context, task *types.Task) error

	// Cleanup removes the task's worktree and any other adapter-owned
	// resources. It is safe to call on a task that was never started.
	Cleanup(ctx context.Context, task *types.Task) error

	// Checkpoint captures resumable state for a running task. Callers must
	// check Capabilities.CheckpointRestore first.
	Checkpoint(ctx context.Context, task *types.Task) (*types.CheckpointRef, error)

	// Restore resumes a task from a previously captured checkpoint.
	Restore(ctx context.Context, task *types.Task, checkpoint types.CheckpointRef) error

	// RequestHandoff asks a running task to pause so an interactive
	// session can attach. Callers must check Capabilities.AttachHandoff.
	RequestHandoff(ctx context.Context, task *types.Task) error

	// AttachContext returns the session handle an interactive client uses
	// to attach to a paused-for-attach task.
	AttachContext(ctx context.Context, task *types.Task) (string, error)

	// ResumeFromAttach resumes unattended execution after an interactive
	// session detaches.
	ResumeFromAttach(ctx context.Context, task *types.Task) error
}
