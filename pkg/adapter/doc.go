/*
Package adapter defines the task execution adapter contract and a local
implementation that runs a task as a worker subprocess against a
dedicated git worktree.

An Adapter carries a task through its lifecycle: Prepare creates the
isolated workspace, Start launches the worker, Status/Cancel/Cleanup
observe and tear it down, and Checkpoint/Restore/RequestHandoff/
AttachContext/ResumeFromAttach back the optional attach-and-resume
capabilities a task may advertise via its Capabilities. Callers must check
the relevant capability flag before calling an attach method; the local
adapter returns a precondition error for any capability it does not
support rather than silently no-opping.

LocalAdapter is grounded on the same detached-subprocess pattern
firestige-Otus uses for its daemon: Setsid so the worker survives the
launching process's own termination, the worker PID recorded on the task
(Runtime.WorkerPID) so its liveness can be probed with a signal-0 check,
and stdout/stderr redirected into the task's
artifact directory.
*/
package adapter
