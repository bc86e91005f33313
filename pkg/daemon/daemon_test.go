package daemon

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdtzmn/port/pkg/jobs"
	"github.com/jdtzmn/port/pkg/types"
)

func fakeWorkerScript(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake worker script assumes a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-daemon.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nsleep 2\n"), 0o755))
	return path
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func queueTask(t *testing.T, repo string) {
	t.Helper()
	require.NoError(t, jobs.CreateTask(repo, &types.Task{
		ID:        "task-1",
		Title:     "test",
		Mode:      types.TaskModeWrite,
		Status:    types.TaskStatusQueued,
		Branch:    "feature-a",
		Adapter:   "local",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))
}

type fakeAdapter struct {
	startErr error
	statuses map[string]types.TaskStatus
}

func (f *fakeAdapter) Prepare(ctx context.Context, task *types.Task) error { return nil }
func (f *fakeAdapter) Start(ctx context.Context, task *types.Task) error  { return f.startErr }
func (f *fakeAdapter) Status(ctx context.Context, task *types.Task) (types.TaskStatus, error) {
	if f.statuses != nil {
		if s, ok := f.statuses[task.ID]; ok {
			return s, nil
		}
	}
	return task.Status, nil
}
func (f *fakeAdapter) Cancel(ctx context.Context, task *types.Task) error  { return nil }
func (f *fakeAdapter) Cleanup(ctx context.Context, task *types.Task) error { return nil }
func (f *fakeAdapter) Checkpoint(ctx context.Context, task *types.Task) (*types.CheckpointRef, error) {
	return nil, nil
}
func (f *fakeAdapter) Restore(ctx context.Context, task *types.Task, checkpoint types.CheckpointRef) error {
	return nil
}
func (f *fakeAdapter) RequestHandoff(ctx context.Context, task *types.Task) error { return nil }
func (f *fakeAdapter) AttachContext(ctx context.Context, task *types.Task) (string, error) {
	return "", nil
}
func (f *fakeAdapter) ResumeFromAttach(ctx context.Context, task *types.Task) error { return nil }

type countingDispatcher struct{ calls int }

func (d *countingDispatcher) Dispatch(repo string) error {
	d.calls++
	return nil
}

func TestEnsureRunningSpawnsWhenNoDaemonAlive(t *testing.T) {
	repo := t.TempDir()
	// Use a fake sleeping script as the "daemon" so the process is alive
	// but never writes its own daemon.json.
	alreadyRunning, err := EnsureRunning(repo, fakeWorkerScript(t))
	require.NoError(t, err)
	assert.False(t, alreadyRunning)
}

func TestEnsureRunningDetectsAlreadyAliveDaemon(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, writeState(repo, &types.DaemonState{PID: os.Getpid(), Status: types.DaemonStatusRunning}))

	alreadyRunning, err := EnsureRunning(repo, "/bin/does-not-matter")
	require.NoError(t, err)
	assert.True(t, alreadyRunning)
}

func TestDaemonRunShutsDownWhenIdle(t *testing.T) {
	repo := t.TempDir()
	d := New(Options{
		Repo:         repo,
		Adapter:      &fakeAdapter{},
		TickInterval: 10 * time.Millisecond,
		IdleTimeout:  20 * time.Millisecond,
	})

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down on idle")
	}
}

func TestDaemonTickDispatchesAndStartsRunnableTasks(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(repo, 0o755))

	d := New(Options{
		Repo:       repo,
		Adapter:    &fakeAdapter{},
		Dispatcher: &countingDispatcher{},
	})

	queueTask(t, repo)

	idle := d.tick(testLogger())
	assert.False(t, idle, "a freshly queued task must be considered active")
	assert.Equal(t, 1, d.opts.Dispatcher.(*countingDispatcher).calls)

	index, err := jobs.LoadIndex(repo)
	require.NoError(t, err)
	require.Len(t, index.Tasks, 1)
	assert.Equal(t, types.TaskStatusRunning, index.Tasks[0].Status, "the queued task must have been started")
}
