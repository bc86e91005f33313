package override

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdtzmn/port/pkg/compose"
)

const webCompose = `
services:
  web:
    image: app:latest
    container_name: app-web
    ports:
      - "18000:8000"
`

func TestGenerateProducesExactTraefikLabels(t *testing.T) {
	doc, err := compose.Parse([]byte(webCompose))
	require.NoError(t, err)

	Generate(doc, Options{
		Branch:         "feature-1",
		Domain:         "port",
		ProjectNetwork: "feature-1_default",
		ProxyNetwork:   "proxy",
	})

	out, err := doc.Marshal()
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "traefik.http.routers.feature-1-web-18000.rule: Host(`feature-1.port`)")
	assert.Contains(t, text, "traefik.http.routers.feature-1-web-18000.entrypoints: port18000")
	assert.Contains(t, text, "traefik.http.services.feature-1-web-18000.loadbalancer.server.port: \"8000\"")
	assert.Contains(t, text, "traefik.tcp.routers.feature-1-web-18000.rule: HostSNI(`feature-1.port`)")
	assert.Contains(t, text, "traefik.tcp.routers.feature-1-web-18000.tls: \"true\"")
	assert.Contains(t, text, "traefik.tcp.services.feature-1-web-18000.loadbalancer.server.port: \"8000\"")
	assert.Contains(t, text, "ports: !override []")
	assert.Contains(t, text, "container_name: feature-1-web")
}

func TestGenerateIsIdempotent(t *testing.T) {
	doc, err := compose.Parse([]byte(webCompose))
	require.NoError(t, err)
	opts := Options{Branch: "feature-1", Domain: "port", ProjectNetwork: "feature-1_default", ProxyNetwork: "proxy"}

	Generate(doc, opts)
	first, err := doc.Marshal()
	require.NoError(t, err)

	doc2, err := compose.Parse(first)
	require.NoError(t, err)
	Generate(doc2, opts)
	second, err := doc2.Marshal()
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestSanitizeContainerNameHandlesInvalidAndLongInputs(t *testing.T) {
	name := sanitizeContainerName("Feature/ABC!", "web")
	assert.Regexp(t, `^[a-z0-9][a-z0-9_.-]*$`, name)

	long := strings.Repeat("x", 200)
	truncated := sanitizeContainerName(long, "web")
	assert.LessOrEqual(t, len(truncated), maxContainerNameLength)
	assert.Regexp(t, `^[a-z0-9][a-z0-9_.-]*-[0-9a-f]{8}$`, truncated)
}
