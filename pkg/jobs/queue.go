package jobs

import (
	"sort"

	"github.com/jdtzmn/port/pkg/types"
)

// ReconcileBranchQueue groups the index's active write-mode tasks that have
// a branch by lock key, orders each group by (createdAt, id), and sets
// every task's BlockedByTaskID to the id of the previous task in its
// group — nil for the first. Read-mode tasks and tasks without a branch
// never block and are never blocked (§4.F); every other task, terminal or
// not, has its BlockedByTaskID cleared and is excluded from grouping.
func ReconcileBranchQueue(index *types.TaskIndex) {
	groups := make(map[string][]*types.Task)
	for _, t := range index.Tasks {
		if !t.Status.IsActive() || t.Mode != types.TaskModeWrite || t.LockKey() == "" {
			t.Queue.BlockedByTaskID = ""
			continue
		}
		key := t.LockKey()
		groups[key] = append(groups[key], t)
	}

	for key, tasks := range groups {
		sort.Slice(tasks, func(i, j int) bool {
			if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
				return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
			}
			return tasks[i].ID < tasks[j].ID
		})
		for i, t := range tasks {
			t.Queue.LockKey = key
			if i == 0 {
				t.Queue.BlockedByTaskID = ""
			} else {
				t.Queue.BlockedByTaskID = tasks[i-1].ID
			}
		}
	}
}

// RunnableTasks returns every active task in index that is not currently
// blocked by another task in its lock group.
func RunnableTasks(index *types.TaskIndex) []*types.Task {
	var out []*types.Task
	for _, t := range index.Tasks {
		if t.Status.IsActive() && t.Queue.BlockedByTaskID == "" {
			out = append(out, t)
		}
	}
	return out
}
