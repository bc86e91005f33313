package routing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitFilesBootstrapsStaticConfigAndCompose(t *testing.T) {
	globalDir := t.TempDir()

	require.NoError(t, InitFiles(globalDir, []int{8000, 8001}))

	ports, err := GetConfiguredPorts(globalDir)
	require.NoError(t, err)
	assert.Equal(t, []int{8000, 8001}, ports)

	_, composeFile, _, dynamicDir := paths(globalDir)
	assert.DirExists(t, dynamicDir)
	assert.FileExists(t, composeFile)

	data, err := os.ReadFile(composeFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "port-routing-proxy")
	assert.Contains(t, string(data), "8000:8000")
}

func TestInitFilesIsNoopOnceBootstrapped(t *testing.T) {
	globalDir := t.TempDir()
	require.NoError(t, InitFiles(globalDir, []int{8000}))
	require.NoError(t, InitFiles(globalDir, []int{9000}))

	ports, err := GetConfiguredPorts(globalDir)
	require.NoError(t, err)
	assert.Equal(t, []int{8000}, ports, "InitFiles must not touch an existing static config")
}

func TestEnsurePortsOnlyWritesWhenSetGrows(t *testing.T) {
	globalDir := t.TempDir()
	require.NoError(t, InitFiles(globalDir, []int{8000}))

	changed, err := EnsurePorts(globalDir, []int{8000})
	require.NoError(t, err)
	assert.False(t, changed, "ensuring an already-configured port must be a no-op")

	changed, err = EnsurePorts(globalDir, []int{8000, 9000})
	require.NoError(t, err)
	assert.True(t, changed)

	ports, err := GetConfiguredPorts(globalDir)
	require.NoError(t, err)
	assert.Equal(t, []int{8000, 9000}, ports)
}

func TestGetConfiguredPortsOnMissingFileReturnsEmpty(t *testing.T) {
	globalDir := t.TempDir()
	ports, err := GetConfiguredPorts(globalDir)
	require.NoError(t, err)
	assert.Empty(t, ports)
}

func TestEnsureDynamicDirCreatesDirectory(t *testing.T) {
	globalDir := t.TempDir()
	dir, err := EnsureDynamicDir(globalDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(globalDir, "routing", "dynamic"), dir)
	assert.DirExists(t, dir)
}
