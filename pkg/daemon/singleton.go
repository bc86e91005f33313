package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jdtzmn/port/pkg/filelock"
	"github.com/jdtzmn/port/pkg/porterr"
	"github.com/jdtzmn/port/pkg/types"
)

func runtimeDir(repo string) string {
	return filepath.Join(repo, ".port", "jobs", "runtime")
}

func stateFile(repo string) string {
	return filepath.Join(runtimeDir(repo), "daemon.json")
}

func startLockFile(repo string) string {
	return filepath.Join(repo, ".port", "jobs", "daemon-start.lock")
}

func readState(repo string) (*types.DaemonState, error) {
	raw, err := os.ReadFile(stateFile(repo))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, porterr.New(porterr.KindPreconditionMissing, "daemon.readState", err)
	}
	var state types.DaemonState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, nil
	}
	return &state, nil
}

func writeState(repo string, state *types.DaemonState) error {
	if err := os.MkdirAll(runtimeDir(repo), 0o755); err != nil {
		return porterr.New(porterr.KindPreconditionMissing, "daemon.writeState", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return porterr.New(porterr.KindCorruption, "daemon.writeState", err)
	}
	data = append(data, '\n')
	return filelock.WriteFileAtomic(stateFile(repo), data, 0o644)
}

func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// EnsureRunning spawns a daemon for repo if one is not already alive,
// serialized by daemon-start.lock so two concurrent CLI invocations never
// race into double-spawning. It returns whether a daemon was already
// running before this call.
func EnsureRunning(repo, executable string) (alreadyRunning bool, err error) {
	err = filelock.WithFileLock(startLockFile(repo), func() error {
		state, readErr := readState(repo)
		if readErr != nil {
			return readErr
		}
		if state != nil && isAlive(state.PID) {
			alreadyRunning = true
			return nil
		}
		return spawn(repo, executable)
	}, filelock.Options{})
	return alreadyRunning, err
}

func spawn(repo, executable string) error {
	if executable == "" {
		var err error
		executable, err = os.Executable()
		if err != nil {
			return porterr.New(porterr.KindAdapterFailure, "daemon.spawn", err)
		}
	}
	cmd := exec.Command(executable, "daemon", "run", "--repo", repo)
	cmd.Dir = repo
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return porterr.New(porterr.KindAdapterFailure, "daemon.spawn", err)
	}
	return cmd.Process.Release()
}

// WaitUntilRunning polls runtime/daemon.json until a live daemon is
// recorded or timeout elapses.
func WaitUntilRunning(repo string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		state, err := readState(repo)
		if err == nil && state != nil && isAlive(state.PID) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return porterr.New(porterr.KindLockTimeout, "daemon.WaitUntilRunning", fmt.Errorf("no daemon became alive within %s", timeout))
}
