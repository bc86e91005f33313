/*
Package hostservice runs a host-local auxiliary process (a dev server that
cannot run in a container, a native debugger, anything that needs direct
host access) as part of a branch stack, routed through the same shared
Traefik instance as the containerized services.

Run allocates an ephemeral port by opening and immediately closing a
transient TCP listener, writes a Traefik dynamic-config file that routes
the branch's logical port to that ephemeral port, registers the service in
the global registry, and then spawns the user's command with PORT set to
the allocated port in its environment. It blocks in the foreground,
turning SIGINT/SIGTERM into a graceful stop of the child process
(escalating to SIGKILL after a grace period) and returning the
shell-convention exit code (128+signal) for whichever signal it received,
so a wrapping process can tell a deliberate stop from the child's own
exit. SIGHUP is trapped but not forwarded: the child keeps running.
*/
package hostservice
