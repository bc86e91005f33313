package jobs

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdtzmn/port/pkg/types"
)

func TestAppendEventWritesBothLogs(t *testing.T) {
	repo := t.TempDir()
	event := types.TaskEvent{ID: "e1", TaskID: "task-1", Type: "queued", At: time.Now()}
	require.NoError(t, AppendEvent(repo, event))

	taskEvents, err := ReadTaskEvents(repo, "task-1")
	require.NoError(t, err)
	require.Len(t, taskEvents, 1)
	assert.Equal(t, "queued", taskEvents[0].Type)

	all, err := ReadAllEvents(repo)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "task-1", all[0].TaskID)
}

func TestReadEventsOnMissingLogReturnsEmpty(t *testing.T) {
	repo := t.TempDir()
	events, err := ReadTaskEvents(repo, "nope")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCursorReadDefaultsAndAdvances(t *testing.T) {
	repo := t.TempDir()

	cursor, err := ReadCursor(repo, "opencode")
	require.NoError(t, err)
	assert.Equal(t, 0, cursor.Line)

	require.NoError(t, AdvanceCursor(repo, "opencode", types.ConsumerCursor{Line: 5}))

	cursor, err = ReadCursor(repo, "opencode")
	require.NoError(t, err)
	assert.Equal(t, 5, cursor.Line)
}

func TestAppendNotificationWritesLine(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, AppendNotification(repo, "opencode", "task task-1 completed"))

	raw, err := os.ReadFile(notificationLogFile(repo, "opencode"))
	require.NoError(t, err)
	assert.Equal(t, "task task-1 completed\n", string(raw))

	data, err := ReadAllEvents(repo)
	require.NoError(t, err)
	assert.Empty(t, data, "notifications are a separate log from task events")
}
