package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, repoRoot, body string) string {
	t.Helper()
	dir := filepath.Join(repoRoot, ".port")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestStripJSONCRemovesCommentsNotStrings(t *testing.T) {
	src := []byte(`{
  // line comment
  "domain": "port", /* block
  comment */ "tcpPorts": [1, 2],
  "url": "http://example.com" // trailing
}`)
	out := stripJSONC(src)
	assert.Contains(t, string(out), `"http://example.com"`)
	assert.NotContains(t, string(out), "line comment")
	assert.NotContains(t, string(out), "block")
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	repoRoot := t.TempDir()
	cfg, err := Load(repoRoot)
	require.NoError(t, err)
	assert.Equal(t, "port", cfg.Domain)
	assert.Equal(t, defaultTaskTimeoutMs, cfg.Task.TimeoutMs)
	assert.Equal(t, defaultTaskIdleStopMs, cfg.Task.IdleStopMs)
}

func TestLoadParsesJSONCWithComments(t *testing.T) {
	repoRoot := t.TempDir()
	writeConfig(t, repoRoot, `{
  // per-repo routing domain
  "domain": "dev",
  "tcpPorts": [5432, 6379],
  "task": {
    "timeoutMs": 5000,
    "idleStopMs": 1000
  },
  "subscribers": { "enabled": true, "consumers": ["opencode"] }
}`)

	cfg, err := Load(repoRoot)
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Domain)
	assert.Equal(t, []int{5432, 6379}, cfg.TCPPorts)
	assert.Equal(t, 5000, cfg.Task.TimeoutMs)
	assert.True(t, cfg.Subscribers.Enabled)
	assert.Equal(t, []string{"opencode"}, cfg.Subscribers.Consumers)
}

func TestWatcherReloadsTaskAndSubscriberFields(t *testing.T) {
	repoRoot := t.TempDir()
	path := writeConfig(t, repoRoot, `{"domain": "dev", "task": {"timeoutMs": 1000, "idleStopMs": 500}}`)

	w, err := NewWatcher(repoRoot)
	require.NoError(t, err)
	assert.Equal(t, 1000, w.Current().Task.TimeoutMs)

	require.NoError(t, os.WriteFile(path, []byte(`{"domain": "dev", "task": {"timeoutMs": 9000, "idleStopMs": 500}}`), 0o644))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.Current().Task.TimeoutMs == 9000 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, 9000, w.Current().Task.TimeoutMs)
	// domain is not live-reloaded; it keeps its originally loaded value
	assert.Equal(t, "dev", w.Current().Domain)
}

func TestGlobalDirRespectsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(GlobalDirEnv, dir)
	got, err := GlobalDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}
