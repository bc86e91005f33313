package hostservice

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// exitCodeForSignal follows shell convention: a process that stops on
// signal N reports exit code 128+N.
func exitCodeForSignal(sig os.Signal) int {
	switch sig {
	case syscall.SIGINT:
		return 130
	case syscall.SIGTERM:
		return 143
	case syscall.SIGHUP:
		return 129
	default:
		return 1
	}
}

// waitForExit blocks until the child process exits on its own, or until a
// signal arrives asking this process to stop it.
func waitForExit(ctx context.Context, cmd *exec.Cmd, gracePeriod time.Duration, hostLog zerolog.Logger) (int, error) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case sig := <-sigs:
		hostLog.Info().Str("signal", sig.String()).Msg("stopping host service")
		if sig == syscall.SIGHUP {
			// Per the source behavior this mirrors: SIGHUP does not forward
			// a stop signal to the child before cleanup; the parent exits
			// 129 and leaves the child to whatever reaps it.
			return exitCodeForSignal(sig), nil
		}
		stopProcessGroup(cmd, gracePeriod, hostLog)
		<-done
		return exitCodeForSignal(sig), nil

	case <-ctx.Done():
		stopProcessGroup(cmd, gracePeriod, hostLog)
		<-done
		return exitCodeForSignal(syscall.SIGTERM), nil

	case err := <-done:
		if err != nil {
			hostLog.Warn().Err(err).Msg("host service command exited with an error")
			return 1, nil
		}
		return 0, nil
	}
}

// stopProcessGroup sends SIGTERM to the child's process group, waits up to
// gracePeriod for it to exit, and escalates to SIGKILL if it hasn't.
func stopProcessGroup(cmd *exec.Cmd, gracePeriod time.Duration, hostLog zerolog.Logger) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if !processAlive(pgid) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	hostLog.Warn().Int("pid", pgid).Msg("host service did not stop in time, sending SIGKILL")
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
