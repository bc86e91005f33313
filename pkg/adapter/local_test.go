package adapter

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdtzmn/port/pkg/types"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	repo := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("hello"), 0o644))
	run("add", ".")
	run("commit", "-m", "initial")
	return repo
}

// fakeWorkerScript writes a tiny shell script that sleeps, standing in for
// a re-invocation of the port binary in worker mode.
func fakeWorkerScript(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake worker script assumes a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-worker.sh")
	script := "#!/bin/sh\nsleep 30\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestLocalAdapterPrepareStartCancelCleanup(t *testing.T) {
	repo := initGitRepo(t)
	adapter := &LocalAdapter{Repo: repo, BaseBranch: "main", Executable: fakeWorkerScript(t)}
	task := &types.Task{ID: "task-1", Branch: "feature-a", Adapter: "local"}

	require.NoError(t, adapter.Prepare(t.Context(), task))
	assert.DirExists(t, task.Runtime.WorktreePath)
	assert.NotNil(t, task.Runtime.PreparedAt)

	task.Status = types.TaskStatusRunning
	require.NoError(t, adapter.Start(t.Context(), task))
	assert.Greater(t, task.Runtime.WorkerPID, 0)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !isAlive(task.Runtime.WorkerPID) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, isAlive(task.Runtime.WorkerPID))

	status, err := adapter.Status(t.Context(), task)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusRunning, status)

	require.NoError(t, adapter.Cancel(t.Context(), task))
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && isAlive(task.Runtime.WorkerPID) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, isAlive(task.Runtime.WorkerPID))

	require.NoError(t, adapter.Cleanup(t.Context(), task))
	assert.NoDirExists(t, task.Runtime.WorktreePath)
}

func TestLocalAdapterStatusReportsFailedWhenWorkerDiesUnexpectedly(t *testing.T) {
	repo := initGitRepo(t)
	adapter := &LocalAdapter{Repo: repo, BaseBranch: "main"}
	task := &types.Task{
		ID:      "task-2",
		Status:  types.TaskStatusRunning,
		Adapter: "local",
		Runtime: types.RuntimeState{WorkerPID: 999999999},
	}

	status, err := adapter.Status(t.Context(), task)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, status)
}

func TestLocalAdapterCheckpointUnsupported(t *testing.T) {
	adapter := &LocalAdapter{}
	_, err := adapter.Checkpoint(t.Context(), &types.Task{ID: "task-3", Adapter: "local"})
	assert.Error(t, err)
}
