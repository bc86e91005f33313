/*
Package filelock implements the cross-process mutual-exclusion and
crash-safe write primitives every stateful package builds on: the task
index, the global registry, the routing config, and consumer cursors.

WithFileLock acquires an exclusive, advisory lock by creating a lock file
with open-exclusive semantics (os.O_CREATE|os.O_EXCL), retrying on
collision until a timeout elapses, running the callback, then closing and
unlinking the lock file. It is not reentrant and makes no ordering
guarantee among waiters — this is a spin-retry lock, not a queue.

WriteFileAtomic writes through a uniquely-named temp file in the same
directory followed by os.Rename, so a reader never observes a partially
written file, following the same temp-file-then-rename pattern used
elsewhere in the ecosystem for crash-safe persistence.
*/
package filelock
