/*
Package types defines the data structures shared by the task scheduler and
the routing control plane: the Task and TaskIndex persisted per repository,
the append-only TaskEvent log entries, the runtime-only DaemonState, and the
host-wide GlobalRegistry records.

# Core types

Task lifecycle:
  - Task: one unit of scheduled work, with Mode (read/write), Status, the
    derived QueueState (branch-lock bookkeeping), and the daemon-owned
    RuntimeState.
  - TaskStatus: a closed, tagged set of states; IsActive and IsTerminal are
    the only sanctioned way to partition it.
  - TaskEvent: one immutable line in a task's or the global event log.

Shared host state:
  - GlobalRegistry: the set of registered (repo, branch) stacks and
    host-local auxiliary processes.
  - DaemonState: the heartbeat record a running daemon rewrites each tick.
  - ConsumerCursor: a subscriber's position in the global event stream.

# Design notes

Enums are typed strings with const blocks, matching the rest of the
ecosystem's convention. Optional fields use pointers (RuntimeState.StartedAt
et al.) so a zero time.Time is never ambiguous with "not yet set". Task
references other tasks only through Queue.BlockedByTaskID, a plain string
id recomputed by the branch-lock queue on every index write; there are no
cyclic object graphs in this model.

This package has no behavior of its own — persistence lives in pkg/jobs,
locking in pkg/filelock, and registry mutation in pkg/registry.
*/
package types
