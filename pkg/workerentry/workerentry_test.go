package workerentry

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdtzmn/port/pkg/jobs"
	"github.com/jdtzmn/port/pkg/types"
)

func initGitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	return dir
}

func seedTask(t *testing.T, repo string, mode types.TaskMode) *types.Task {
	t.Helper()
	task := &types.Task{
		ID: "task-1", Title: "write a file", Mode: mode, Status: types.TaskStatusPreparing,
		Adapter: "local", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, jobs.CreateTask(repo, task))
	return task
}

func TestRunCompletesReadOnlyTask(t *testing.T) {
	repo := t.TempDir()
	worktree := initGitRepo(t)
	seedTask(t, repo, types.TaskModeRead)

	err := Run(context.Background(), repo, "task-1", worktree)
	require.NoError(t, err)

	index, err := jobs.LoadIndex(repo)
	require.NoError(t, err)
	require.Len(t, index.Tasks, 1)
	assert.Equal(t, types.TaskStatusCompleted, index.Tasks[0].Status)
	assert.NotNil(t, index.Tasks[0].Runtime.FinishedAt)
	require.NotNil(t, index.Tasks[0].Runtime.LastExitCode)
	assert.Equal(t, 0, *index.Tasks[0].Runtime.LastExitCode)

	data, err := os.ReadFile(filepath.Join(jobs.ArtifactsDir(repo, "task-1"), "metadata.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"taskId": "task-1"`)
}

func TestRunCapturesPatchForWriteModeTask(t *testing.T) {
	repo := t.TempDir()
	worktree := initGitRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(worktree, "README.md"), []byte("hello\nworld\n"), 0o644))
	seedTask(t, repo, types.TaskModeWrite)

	err := Run(context.Background(), repo, "task-1", worktree)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(jobs.ArtifactsDir(repo, "task-1"), "changes.patch"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "README.md")
}

func TestRunFailsFastWhenTaskMissing(t *testing.T) {
	repo := t.TempDir()
	worktree := initGitRepo(t)

	err := Run(context.Background(), repo, "does-not-exist", worktree)
	require.Error(t, err)
}
