package hostservice

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdtzmn/port/pkg/config"
	"github.com/jdtzmn/port/pkg/registry"
)

func withGlobalDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.GlobalDirEnv, dir)
	return dir
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("scripts assume a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestAllocatePortReturnsUsablePort(t *testing.T) {
	port, err := AllocatePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
}

func TestRunRegistersAndUnregistersHostService(t *testing.T) {
	globalDir := withGlobalDir(t)
	script := writeScript(t, "sleep 0.2\n")

	code, err := Run(context.Background(), Options{
		Repo: "/repo", Branch: "feature-a", LogicalPort: 9000, Domain: "port",
		Command: []string{script}, GlobalDir: globalDir,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	services, err := registry.GetAllHostServices()
	require.NoError(t, err)
	assert.Empty(t, services, "host service must be unregistered once the command exits")
}

func TestRunEscalatesToSigkillWhenChildIgnoresSigterm(t *testing.T) {
	globalDir := withGlobalDir(t)
	script := writeScript(t, "trap '' TERM\nsleep 30\n")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var code int
	var runErr error
	go func() {
		code, runErr = Run(ctx, Options{
			Repo: "/repo", Branch: "feature-b", LogicalPort: 9001, Domain: "port",
			Command: []string{script}, GlobalDir: globalDir, GracePeriod: 150 * time.Millisecond,
		})
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
		require.NoError(t, runErr)
		assert.Equal(t, 143, code)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not escalate to SIGKILL and return in time")
	}
}

func TestDynamicConfigWritesTraefikRouterForActualPort(t *testing.T) {
	globalDir := withGlobalDir(t)
	path, err := writeDynamicConfig(Options{
		Repo: "/repo", Branch: "feature-c", LogicalPort: 9002, Domain: "port", GlobalDir: globalDir,
	}, 54321)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "http://host.docker.internal:54321")
	assert.Contains(t, string(data), "Host(`feature-c.port`)")
}
