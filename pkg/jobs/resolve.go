package jobs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jdtzmn/port/pkg/porterr"
	"github.com/jdtzmn/port/pkg/types"
)

func errTaskNotFound(ref string) error {
	return fmt.Errorf("no task matching %q", ref)
}

// AmbiguousTaskRefError reports that a ref's prefix matched more than one
// task, carrying the full candidate set (§4.E) rather than just a count so
// a caller can print or otherwise use the actual matches.
type AmbiguousTaskRefError struct {
	Ref        string
	Candidates []*types.Task
}

func (e *AmbiguousTaskRefError) Error() string {
	ids := make([]string, len(e.Candidates))
	for i, t := range e.Candidates {
		ids[i] = t.ID
	}
	return fmt.Sprintf("ambiguous task ref %q matches %d tasks: %s", e.Ref, len(e.Candidates), strings.Join(ids, ", "))
}

// dedupeTasks removes duplicate entries (a ref can match via both the raw
// and task--stripped prefix branch in ResolveTaskRef) while preserving order.
func dedupeTasks(tasks []*types.Task) []*types.Task {
	if len(tasks) < 2 {
		return tasks
	}
	seen := make(map[string]bool, len(tasks))
	out := make([]*types.Task, 0, len(tasks))
	for _, t := range tasks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}

// ResolveTaskRef resolves a CLI-supplied task reference: a bare integer
// matches a display id; anything else first tries an exact task id, then
// an unambiguous id prefix.
func ResolveTaskRef(index *types.TaskIndex, ref string) (*types.Task, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		for _, t := range index.Tasks {
			if t.DisplayID == n {
				return t, nil
			}
		}
		return nil, porterr.New(porterr.KindUserInput, "jobs.ResolveTaskRef", errTaskNotFound(ref))
	}

	for _, t := range index.Tasks {
		if t.ID == ref {
			return t, nil
		}
	}

	prefix := strings.TrimPrefix(ref, "task-")

	var matches []*types.Task
	for _, t := range index.Tasks {
		if strings.HasPrefix(t.ID, ref) || strings.HasPrefix(t.ID, prefix) {
			matches = append(matches, t)
		}
	}
	matches = dedupeTasks(matches)
	switch len(matches) {
	case 0:
		return nil, porterr.New(porterr.KindUserInput, "jobs.ResolveTaskRef", errTaskNotFound(ref))
	case 1:
		return matches[0], nil
	default:
		return nil, porterr.New(porterr.KindUserInput, "jobs.ResolveTaskRef",
			&AmbiguousTaskRefError{Ref: ref, Candidates: matches})
	}
}
