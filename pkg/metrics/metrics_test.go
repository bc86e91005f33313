package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerObserveDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 2*time.Millisecond)

	timer.ObserveDuration(DaemonTickDuration)
	timer.ObserveDurationVec(SubscriberDispatchDuration, "opencode")
}

func TestWriteSnapshotIncludesRegisteredMetrics(t *testing.T) {
	TasksStartedTotal.Add(0)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf))

	out := buf.String()
	assert.True(t, strings.Contains(out, "port_tasks_started_total"))
	assert.True(t, strings.Contains(out, "port_active_tasks"))
}
