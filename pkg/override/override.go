package override

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jdtzmn/port/pkg/compose"
)

const maxContainerNameLength = 128

var invalidNameChars = regexp.MustCompile(`[^a-z0-9_.-]+`)

// Options configures a single branch stack's override generation.
type Options struct {
	Branch         string
	Domain         string
	ProjectNetwork string
	ProxyNetwork   string
}

// Generate rewrites doc in place for a single branch stack: container
// names, Traefik labels, port suppression, and network attachment. It is
// idempotent — calling it again on its own prior output reproduces the
// same document.
//
// Per §4.D both rewrites are conditional per service: the container_name
// rewrite only applies to a service that already declares one, and the
// ports/labels/network block only applies to a service with at least one
// resolvable published→target port. A portless service (e.g. a worker with
// no exposed port) is left with its original ports and out of the proxy
// network.
func Generate(doc *compose.Document, opts Options) {
	doc.DeclareExternalNetwork(opts.ProxyNetwork)

	for _, name := range doc.ServiceNames() {
		service := doc.Service(name)
		if service == nil {
			continue
		}

		if _, ok := compose.GetString(service, "container_name"); ok {
			compose.SetString(service, "container_name", sanitizeContainerName(opts.Branch, name))
		}

		ports := compose.Ports(service)
		if len(ports) == 0 {
			continue
		}

		for _, port := range ports {
			applyTraefikLabels(service, opts, name, port)
		}

		compose.SetPortsOverride(service)
		compose.AddNetwork(service, opts.ProjectNetwork)
		compose.AddNetwork(service, opts.ProxyNetwork)
	}
}

// applyTraefikLabels writes the HTTP and TCP router/service label pairs for
// a single published port on a single service. Router name follows
// <branch>-<service>-<publishedPort>; the entrypoint is port<publishedPort>
// and the load-balancer target is the service's container port, not the
// published one.
func applyTraefikLabels(service *yaml.Node, opts Options, serviceName string, port compose.PortSpec) {
	router := fmt.Sprintf("%s-%s-%d", opts.Branch, serviceName, port.Published)
	host := fmt.Sprintf("%s.%s", opts.Branch, opts.Domain)

	compose.SetLabel(service, "traefik.enable", "true")

	compose.SetLabel(service, fmt.Sprintf("traefik.http.routers.%s.rule", router), fmt.Sprintf("Host(`%s`)", host))
	compose.SetLabel(service, fmt.Sprintf("traefik.http.routers.%s.entrypoints", router), fmt.Sprintf("port%d", port.Published))
	compose.SetLabel(service, fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", router), fmt.Sprintf("%d", port.Target))

	compose.SetLabel(service, fmt.Sprintf("traefik.tcp.routers.%s.rule", router), fmt.Sprintf("HostSNI(`%s`)", host))
	compose.SetLabel(service, fmt.Sprintf("traefik.tcp.routers.%s.tls", router), "true")
	compose.SetLabel(service, fmt.Sprintf("traefik.tcp.services.%s.loadbalancer.server.port", router), fmt.Sprintf("%d", port.Target))
}

// sanitizeContainerName produces a docker-legal, branch-unique container
// name: lowercase, [a-z0-9][a-z0-9_.-]*, truncated to 128 characters with a
// content hash suffix so truncation collisions remain distinguishable.
func sanitizeContainerName(branch, service string) string {
	raw := strings.ToLower(branch + "-" + service)
	cleaned := invalidNameChars.ReplaceAllString(raw, "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		cleaned = "svc"
	}
	if first := cleaned[0]; !(first >= 'a' && first <= 'z' || first >= '0' && first <= '9') {
		cleaned = "c-" + cleaned
	}
	if len(cleaned) <= maxContainerNameLength {
		return cleaned
	}

	sum := sha256.Sum256([]byte(raw))
	suffix := "-" + hex.EncodeToString(sum[:])[:8]
	truncated := cleaned[:maxContainerNameLength-len(suffix)]
	truncated = strings.TrimRight(truncated, "-")
	return truncated + suffix
}
