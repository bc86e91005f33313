package compose

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCompose = `
services:
  web:
    image: app:latest
    container_name: app-web
    ports:
      - "8080:80"
      - published: 9000
        target: 90
  db:
    image: postgres:16
`

func TestParseExtractsServicesAndPorts(t *testing.T) {
	doc, err := Parse([]byte(sampleCompose))
	require.NoError(t, err)

	assert.Equal(t, []string{"web", "db"}, doc.ServiceNames())

	web := doc.Service("web")
	require.NotNil(t, web)
	name, ok := GetString(web, "container_name")
	require.True(t, ok)
	assert.Equal(t, "app-web", name)

	ports := Ports(web)
	require.Len(t, ports, 2)
	assert.Equal(t, PortSpec{Published: 8080, Target: 80}, ports[0])
	assert.Equal(t, PortSpec{Published: 9000, Target: 90}, ports[1])
}

func TestSetPortsOverrideEmitsOverrideTag(t *testing.T) {
	doc, err := Parse([]byte(sampleCompose))
	require.NoError(t, err)

	web := doc.Service("web")
	SetPortsOverride(web)
	AddNetwork(web, "proxy")
	doc.DeclareExternalNetwork("proxy")

	out, err := doc.Marshal()
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.Contains(text, "ports: !override []"), text)
	assert.True(t, strings.Contains(text, "external: true"), text)
}

func TestMarshalIsIdempotent(t *testing.T) {
	doc, err := Parse([]byte(sampleCompose))
	require.NoError(t, err)
	SetPortsOverride(doc.Service("web"))

	first, err := doc.Marshal()
	require.NoError(t, err)

	doc2, err := Parse(first)
	require.NoError(t, err)
	second, err := doc2.Marshal()
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestParseEmptyDocumentCreatesServicesOnDemand(t *testing.T) {
	doc, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, doc.ServiceNames())

	doc.ServicesNode()
	out, err := doc.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "services:")
}
