/*
Package daemon implements the per-repository task daemon: a singleton
background process that drives the branch-lock queue, reaps workers that
stopped without updating their own task status, starts the next runnable
task, and dispatches subscriber notifications once a second.

EnsureRunning is the CLI-facing entry point: it acquires daemon-start.lock,
checks whether the daemon recorded in runtime/daemon.json is still alive
(the same signal-0 liveness probe pkg/registry and pkg/adapter use), and
spawns a new detached daemon process only if not. Run is the daemon
process's own main loop, invoked by the `daemon run` command after the
singleton check has already passed.

Every external dependency the loop needs (the task adapter, the
subscriber dispatcher) is injected via Options rather than imported
directly, so the loop itself stays a plain scheduler over interfaces.
*/
package daemon
