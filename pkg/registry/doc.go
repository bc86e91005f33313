/*
Package registry implements the host-wide GlobalRegistry: the set of
registered (repo, branch) stacks and host-local auxiliary processes shared
by every CLI invocation and daemon on the machine.

All mutations acquire registry.lock under the global directory
(pkg/config.GlobalDir) and go through a read-modify-write cycle ending in
pkg/filelock.WriteFileAtomic, so concurrent writers never lose an unrelated
record — only the single record being updated is replaced. A corrupt or
unparseable registry.json is treated as empty on read rather than returned
as an error; the next successful write repairs it.

Stale host-service entries (dead PID) are swept on every read of
GetAllHostServices / GetHostServicesForWorktree, and explicitly via Sweep.
*/
package registry
