/*
Package jobs owns the per-repository task store under <repo>/.port/jobs/:
the task index (index.json, serialized by index.lock), the append-only
per-task and global event logs, and the branch-lock queue derived from the
index on every mutation.

Every mutation goes through Mutate, which loads the index under
pkg/filelock, applies a caller function, and writes the result back
atomically; loading transparently migrates older index versions by
assigning a display id to any task that is missing one, in (createdAt, id)
order, the same repair-on-read approach pkg/registry uses for a corrupt
registry file.

ResolveTaskRef implements the CLI's task-reference grammar: a bare integer
matches a display id, anything else first tries an exact task id, then an
unambiguous id prefix.
*/
package jobs
