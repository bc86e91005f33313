/*
Package routing manages the single shared Traefik instance every branch
stack routes through: its static configuration (entrypoints, the file
provider pointing at the per-stack dynamic directory) and its own
docker-compose file.

Ensuring a port is configured is idempotent: EnsurePorts only rewrites the
static config and compose file when the required port set grows or a file,
the web entrypoint, or a provider block is missing, and every write goes
through routing.lock (pkg/filelock) so concurrent CLI invocations never
interleave writes.
*/
package routing
