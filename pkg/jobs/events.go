package jobs

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jdtzmn/port/pkg/filelock"
	"github.com/jdtzmn/port/pkg/porterr"
	"github.com/jdtzmn/port/pkg/types"
)

func eventsLockFile(repo string) string {
	return filepath.Join(eventsDir(repo), "events.lock")
}

// AppendEvent writes event to both the per-task event log and the global
// event log, serialized by its own lock (distinct from index.lock, so it
// can be called from within an index.Mutate callback without deadlocking).
func AppendEvent(repo string, event types.TaskEvent) error {
	if err := os.MkdirAll(eventsDir(repo), 0o755); err != nil {
		return porterr.New(porterr.KindPreconditionMissing, "jobs.AppendEvent", err)
	}
	line, err := json.Marshal(event)
	if err != nil {
		return porterr.New(porterr.KindCorruption, "jobs.AppendEvent", err)
	}
	line = append(line, '\n')

	return filelock.WithFileLock(eventsLockFile(repo), func() error {
		if err := appendLine(eventFile(repo, event.TaskID), line); err != nil {
			return err
		}
		return appendLine(allEventsFile(repo), line)
	}, filelock.Options{})
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return porterr.New(porterr.KindPreconditionMissing, "jobs.appendLine", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return porterr.New(porterr.KindPreconditionMissing, "jobs.appendLine", err)
	}
	return nil
}

// ReadTaskEvents returns every event recorded for taskID, in append order.
func ReadTaskEvents(repo, taskID string) ([]types.TaskEvent, error) {
	return readEventLog(eventFile(repo, taskID))
}

// ReadAllEvents returns every event recorded across all tasks, in append
// order.
func ReadAllEvents(repo string) ([]types.TaskEvent, error) {
	return readEventLog(allEventsFile(repo))
}

func readEventLog(path string) ([]types.TaskEvent, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, porterr.New(porterr.KindPreconditionMissing, "jobs.readEventLog", err)
	}
	return parseEventLines(raw)
}

func parseEventLines(raw []byte) ([]types.TaskEvent, error) {
	var events []types.TaskEvent
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == '\n' {
			if i > start {
				var event types.TaskEvent
				if err := json.Unmarshal(raw[start:i], &event); err != nil {
					return nil, porterr.New(porterr.KindCorruption, "jobs.parseEventLines", err)
				}
				events = append(events, event)
			}
			start = i + 1
		}
	}
	return events, nil
}
