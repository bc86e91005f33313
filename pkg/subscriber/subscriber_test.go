package subscriber

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdtzmn/port/pkg/config"
	"github.com/jdtzmn/port/pkg/jobs"
	"github.com/jdtzmn/port/pkg/types"
)

func TestDispatchDeliversEachEventOnce(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, jobs.AppendEvent(repo, types.TaskEvent{
		ID: "evt-1", TaskID: "task-1", Type: "task.created", At: time.Now(),
	}))

	d := &Dispatcher{Consumers: map[string]Handler{"opencode": OpencodeHandler{}}}

	require.NoError(t, d.Dispatch(repo))
	require.NoError(t, d.Dispatch(repo))

	data, err := os.ReadFile(filepath.Join(repo, ".port", "jobs", "subscribers", "opencode.notifications.log"))
	require.NoError(t, err)
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	assert.Equal(t, 1, lines, "the second dispatch must not redeliver the same event")
}

func TestNewDispatcherOnlyWiresEnabledConsumers(t *testing.T) {
	d := NewDispatcher(config.SubscribersConfig{Enabled: false, Consumers: []string{"opencode"}})
	assert.Empty(t, d.Consumers)
}
