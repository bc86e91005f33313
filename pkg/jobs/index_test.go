package jobs

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdtzmn/port/pkg/types"
)

func newTask(id, branch string, createdAt time.Time) *types.Task {
	return &types.Task{
		ID:        id,
		Title:     id,
		Mode:      types.TaskModeWrite,
		Status:    types.TaskStatusQueued,
		Branch:    branch,
		Adapter:   "local",
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestCreateTaskAssignsSequentialDisplayIDs(t *testing.T) {
	repo := t.TempDir()
	base := time.Now()

	for i := 0; i < 3; i++ {
		task := newTask(fmt.Sprintf("task-%d", i), "main", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, CreateTask(repo, task))
	}

	index, err := LoadIndex(repo)
	require.NoError(t, err)
	require.Len(t, index.Tasks, 3)
	assert.Equal(t, 1, index.Tasks[0].DisplayID)
	assert.Equal(t, 2, index.Tasks[1].DisplayID)
	assert.Equal(t, 3, index.Tasks[2].DisplayID)
}

func TestMigrateAssignsMissingDisplayIDsInCreatedOrder(t *testing.T) {
	base := time.Now()
	index := &types.TaskIndex{
		Tasks: []*types.Task{
			{ID: "b", CreatedAt: base.Add(2 * time.Second)},
			{ID: "a", CreatedAt: base, DisplayID: 0},
			{ID: "c", CreatedAt: base.Add(1 * time.Second), DisplayID: 5},
		},
	}
	migrate(index)

	byID := map[string]*types.Task{}
	for _, t := range index.Tasks {
		byID[t.ID] = t
	}
	assert.Equal(t, 5, byID["c"].DisplayID, "already-assigned ids are untouched")
	assert.Equal(t, 6, byID["a"].DisplayID, "earliest missing entry gets the first free slot")
	assert.Equal(t, 7, byID["b"].DisplayID)
	assert.Equal(t, 8, index.NextDisplayID)
	assert.Equal(t, types.CurrentIndexVersion, index.Version)
}

func TestConcurrentCreateTaskPreservesEveryTask(t *testing.T) {
	repo := t.TempDir()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task := newTask(fmt.Sprintf("task-%d", i), fmt.Sprintf("branch-%d", i), time.Now())
			assert.NoError(t, CreateTask(repo, task))
		}(i)
	}
	wg.Wait()

	index, err := LoadIndex(repo)
	require.NoError(t, err)
	assert.Len(t, index.Tasks, 20)

	seen := map[int]bool{}
	for _, task := range index.Tasks {
		assert.False(t, seen[task.DisplayID], "display ids must be unique")
		seen[task.DisplayID] = true
	}
}

func TestResolveTaskRefByDisplayIDExactIDAndPrefix(t *testing.T) {
	index := &types.TaskIndex{Tasks: []*types.Task{
		{ID: "abcdef01", DisplayID: 1},
		{ID: "abcdef02", DisplayID: 2},
		{ID: "zzzz9999", DisplayID: 3},
	}}

	task, err := ResolveTaskRef(index, "2")
	require.NoError(t, err)
	assert.Equal(t, "abcdef02", task.ID)

	task, err = ResolveTaskRef(index, "zzzz9999")
	require.NoError(t, err)
	assert.Equal(t, 3, task.DisplayID)

	_, err = ResolveTaskRef(index, "abcdef")
	assert.Error(t, err, "ambiguous prefix must fail")

	task, err = ResolveTaskRef(index, "abcdef01")
	require.NoError(t, err)
	assert.Equal(t, 1, task.DisplayID)

	_, err = ResolveTaskRef(index, "nope")
	assert.Error(t, err)
}

func TestPatchTaskUpdatesStatus(t *testing.T) {
	repo := t.TempDir()
	task := newTask("task-1", "main", time.Now())
	require.NoError(t, CreateTask(repo, task))

	require.NoError(t, UpdateTaskStatus(repo, "task-1", types.TaskStatusRunning))

	index, err := LoadIndex(repo)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusRunning, index.Tasks[0].Status)
}
