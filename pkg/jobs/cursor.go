package jobs

import (
	"encoding/json"
	"os"

	"github.com/jdtzmn/port/pkg/filelock"
	"github.com/jdtzmn/port/pkg/porterr"
	"github.com/jdtzmn/port/pkg/types"
)

func cursorLockFile(repo, consumer string) string {
	return cursorFile(repo, consumer) + ".lock"
}

// ReadCursor returns consumer's saved position in the global event log
// (line 0 if the consumer has never run).
func ReadCursor(repo, consumer string) (types.ConsumerCursor, error) {
	raw, err := os.ReadFile(cursorFile(repo, consumer))
	if err != nil {
		if os.IsNotExist(err) {
			return types.ConsumerCursor{}, nil
		}
		return types.ConsumerCursor{}, porterr.New(porterr.KindPreconditionMissing, "jobs.ReadCursor", err)
	}
	var cursor types.ConsumerCursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		// A corrupt cursor restarts the consumer from the beginning rather
		// than blocking dispatch forever.
		return types.ConsumerCursor{}, nil
	}
	return cursor, nil
}

// AdvanceCursor persists consumer's new position, serialized by a
// per-consumer lock so two daemon ticks never race on the same cursor.
func AdvanceCursor(repo, consumer string, cursor types.ConsumerCursor) error {
	if err := os.MkdirAll(subscribersDir(repo), 0o755); err != nil {
		return porterr.New(porterr.KindPreconditionMissing, "jobs.AdvanceCursor", err)
	}
	data, err := json.MarshalIndent(cursor, "", "  ")
	if err != nil {
		return porterr.New(porterr.KindCorruption, "jobs.AdvanceCursor", err)
	}
	data = append(data, '\n')
	return filelock.WithFileLock(cursorLockFile(repo, consumer), func() error {
		return filelock.WriteFileAtomic(cursorFile(repo, consumer), data, 0o644)
	}, filelock.Options{})
}

// AppendNotification appends a line to consumer's notification log.
func AppendNotification(repo, consumer, line string) error {
	if err := os.MkdirAll(subscribersDir(repo), 0o755); err != nil {
		return porterr.New(porterr.KindPreconditionMissing, "jobs.AppendNotification", err)
	}
	return appendLine(notificationLogFile(repo, consumer), []byte(line+"\n"))
}

// DispatchBatch reads the global event stream, slices off up to limit
// unseen events for consumer, calls handle on each in order, and advances
// consumer's cursor — all under the single per-consumer lock, so two
// concurrent dispatchers (e.g. a live daemon and a manual CLI replay) can
// never both deliver the same event or race the cursor write. The cursor
// only advances if every call to handle returns nil; a batch that fails
// partway is redelivered in full on the next dispatch.
func DispatchBatch(repo, consumer string, limit int, handle func(types.TaskEvent) error) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	if err := os.MkdirAll(subscribersDir(repo), 0o755); err != nil {
		return 0, porterr.New(porterr.KindPreconditionMissing, "jobs.DispatchBatch", err)
	}

	delivered := 0
	err := filelock.WithFileLock(cursorLockFile(repo, consumer), func() error {
		raw, err := os.ReadFile(cursorFile(repo, consumer))
		var cursor types.ConsumerCursor
		if err == nil {
			_ = json.Unmarshal(raw, &cursor)
		} else if !os.IsNotExist(err) {
			return porterr.New(porterr.KindPreconditionMissing, "jobs.DispatchBatch", err)
		}

		events, err := ReadAllEvents(repo)
		if err != nil {
			return err
		}
		if cursor.Line < 0 || cursor.Line > len(events) {
			cursor.Line = 0
		}
		end := cursor.Line + limit
		if end > len(events) {
			end = len(events)
		}
		batch := events[cursor.Line:end]

		for _, event := range batch {
			if err := handle(event); err != nil {
				return err
			}
		}
		delivered = len(batch)
		if delivered == 0 {
			return nil
		}

		cursor.Line = end
		data, err := json.MarshalIndent(cursor, "", "  ")
		if err != nil {
			return porterr.New(porterr.KindCorruption, "jobs.DispatchBatch", err)
		}
		data = append(data, '\n')
		return filelock.WriteFileAtomic(cursorFile(repo, consumer), data, 0o644)
	}, filelock.Options{})

	return delivered, err
}
