/*
Package override generates the per-stack docker-compose override file from
a project's base compose file: it rewrites the container name of every
service that declares one to be unique per branch, and for every service
with at least one published port it suppresses the base file's host port
publishing in favor of Traefik routing, attaches the service to the shared
reverse-proxy network, and emits the Traefik router/service labels that
make it reachable through the dynamically provisioned routing entrypoints.

Generate rewrites the parsed base compose document in place, driven by the
document and its Options (branch name, routing domain, project and proxy
network names). Running it on identical inputs produces byte-identical
output, and running it again on its own output reproduces that output, so
a caller such as `port stack apply` can regenerate the file unconditionally
without a separate "has anything changed" check.
*/
package override
