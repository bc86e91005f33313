package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jdtzmn/port/pkg/types"
)

func TestReconcileBranchQueueChainsTasksByLockKey(t *testing.T) {
	base := time.Now()
	t1 := newTask("t1", "feature-a", base)
	t2 := newTask("t2", "feature-a", base.Add(time.Second))
	t3 := newTask("t3", "feature-a", base.Add(2*time.Second))
	other := newTask("other", "feature-b", base)

	index := &types.TaskIndex{Tasks: []*types.Task{t2, t3, t1, other}}
	ReconcileBranchQueue(index)

	assert.Equal(t, "", t1.Queue.BlockedByTaskID)
	assert.Equal(t, "t1", t2.Queue.BlockedByTaskID)
	assert.Equal(t, "t2", t3.Queue.BlockedByTaskID)
	assert.Equal(t, "", other.Queue.BlockedByTaskID)

	runnable := RunnableTasks(index)
	assert.ElementsMatch(t, []*types.Task{t1, other}, runnable)
}

func TestReconcileBranchQueueIgnoresTerminalTasks(t *testing.T) {
	base := time.Now()
	done := newTask("done", "feature-a", base)
	done.Status = types.TaskStatusCompleted
	next := newTask("next", "feature-a", base.Add(time.Second))

	index := &types.TaskIndex{Tasks: []*types.Task{done, next}}
	ReconcileBranchQueue(index)

	assert.Equal(t, "", next.Queue.BlockedByTaskID, "a completed task must not hold the lock")
}

func TestReconcileBranchQueueHonorsExplicitLockKey(t *testing.T) {
	base := time.Now()
	t1 := newTask("t1", "feature-a", base)
	t2 := newTask("t2", "feature-b", base.Add(time.Second))
	t2.Queue.LockKey = "feature-a" // shares a lock group despite a different branch

	index := &types.TaskIndex{Tasks: []*types.Task{t1, t2}}
	ReconcileBranchQueue(index)

	assert.Equal(t, "t1", t2.Queue.BlockedByTaskID)
}
