package jobs

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/jdtzmn/port/pkg/filelock"
	"github.com/jdtzmn/port/pkg/porterr"
	"github.com/jdtzmn/port/pkg/types"
)

func readIndex(repo string) (*types.TaskIndex, error) {
	raw, err := os.ReadFile(indexFile(repo))
	if err != nil {
		if os.IsNotExist(err) {
			return &types.TaskIndex{Version: types.CurrentIndexVersion, NextDisplayID: 1}, nil
		}
		return nil, porterr.New(porterr.KindPreconditionMissing, "jobs.readIndex", err)
	}
	var index types.TaskIndex
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, porterr.New(porterr.KindCorruption, "jobs.readIndex", err)
	}
	migrate(&index)
	return &index, nil
}

// migrate assigns a display id to any task missing one (DisplayID == 0), in
// (createdAt, id) order, and brings NextDisplayID and Version up to date.
// It is safe to call on an already-migrated index: it is then a no-op.
func migrate(index *types.TaskIndex) {
	maxAssigned := 0
	var missing []*types.Task
	for _, t := range index.Tasks {
		if t.DisplayID > 0 {
			if t.DisplayID > maxAssigned {
				maxAssigned = t.DisplayID
			}
			continue
		}
		missing = append(missing, t)
	}
	sort.Slice(missing, func(i, j int) bool {
		if !missing[i].CreatedAt.Equal(missing[j].CreatedAt) {
			return missing[i].CreatedAt.Before(missing[j].CreatedAt)
		}
		return missing[i].ID < missing[j].ID
	})
	next := maxAssigned + 1
	for _, t := range missing {
		t.DisplayID = next
		next++
	}
	if index.NextDisplayID < next {
		index.NextDisplayID = next
	}
	if index.NextDisplayID == 0 {
		index.NextDisplayID = 1
	}
	index.Version = types.CurrentIndexVersion
}

func writeIndex(repo string, index *types.TaskIndex) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return porterr.New(porterr.KindCorruption, "jobs.writeIndex", err)
	}
	data = append(data, '\n')
	return filelock.WriteFileAtomic(indexFile(repo), data, 0o644)
}

// Mutate loads the task index under index.lock, applies fn, reconciles the
// branch-lock queue, and writes the result back atomically.
func Mutate(repo string, fn func(*types.TaskIndex) error) error {
	if err := os.MkdirAll(rootDir(repo), 0o755); err != nil {
		return porterr.New(porterr.KindPreconditionMissing, "jobs.Mutate", err)
	}
	return filelock.WithFileLock(indexLockFile(repo), func() error {
		index, err := readIndex(repo)
		if err != nil {
			return err
		}
		if err := fn(index); err != nil {
			return err
		}
		ReconcileBranchQueue(index)
		return writeIndex(repo, index)
	}, filelock.Options{})
}

// LoadIndex returns a read-only snapshot of the task index, migrated and
// with the branch-lock queue reconciled in memory but not persisted.
func LoadIndex(repo string) (*types.TaskIndex, error) {
	index, err := readIndex(repo)
	if err != nil {
		return nil, err
	}
	ReconcileBranchQueue(index)
	return index, nil
}

// CreateTask assigns a display id and appends task to the index.
func CreateTask(repo string, task *types.Task) error {
	return Mutate(repo, func(index *types.TaskIndex) error {
		if index.NextDisplayID == 0 {
			index.NextDisplayID = 1
		}
		task.DisplayID = index.NextDisplayID
		index.NextDisplayID++
		index.Tasks = append(index.Tasks, task)
		return nil
	})
}

// UpdateTaskStatus transitions a task to status and stamps UpdatedAt.
func UpdateTaskStatus(repo, taskID string, status types.TaskStatus) error {
	return PatchTask(repo, taskID, func(t *types.Task) {
		t.Status = status
		t.UpdatedAt = time.Now()
	})
}

// PatchTask applies fn to the task with the given id; it returns a
// precondition-missing error if no task has that id.
func PatchTask(repo, taskID string, fn func(*types.Task)) error {
	return Mutate(repo, func(index *types.TaskIndex) error {
		for _, t := range index.Tasks {
			if t.ID == taskID {
				fn(t)
				return nil
			}
		}
		return porterr.New(porterr.KindPreconditionMissing, "jobs.PatchTask", errTaskNotFound(taskID))
	})
}
