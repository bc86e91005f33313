package compose

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed compose file kept as a yaml.v3 node tree so unknown
// keys and key order survive a read-modify-write round trip.
type Document struct {
	root *yaml.Node
}

// Parse reads a compose YAML document.
func Parse(data []byte) (*Document, error) {
	var root yaml.Node
	if len(strings.TrimSpace(string(data))) == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{newMapping()}}
		return &Document{root: &root}, nil
	}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("compose: parse: %w", err)
	}
	if len(root.Content) == 0 {
		root.Kind = yaml.DocumentNode
		root.Content = []*yaml.Node{newMapping()}
	}
	return &Document{root: &root}, nil
}

// Marshal renders the document back to YAML.
func (d *Document) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(d.root)
	if err != nil {
		return nil, fmt.Errorf("compose: marshal: %w", err)
	}
	return out, nil
}

func (d *Document) mapping() *yaml.Node {
	return d.root.Content[0]
}

// ServicesNode returns the mapping node under "services", creating it if
// absent.
func (d *Document) ServicesNode() *yaml.Node {
	return getOrCreateMap(d.mapping(), "services")
}

// ServiceNames returns the service keys in document order.
func (d *Document) ServiceNames() []string {
	services := d.ServicesNode()
	names := make([]string, 0, len(services.Content)/2)
	for i := 0; i < len(services.Content); i += 2 {
		names = append(names, services.Content[i].Value)
	}
	return names
}

// Service returns the mapping node for the named service, or nil if absent.
func (d *Document) Service(name string) *yaml.Node {
	node, _ := mapGet(d.ServicesNode(), name)
	return node
}

// SetService upserts a service definition by name.
func (d *Document) SetService(name string, node *yaml.Node) {
	mapSet(d.ServicesNode(), name, node)
}

// --- generic yaml.v3 mapping-node helpers ---

func newMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func newScalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func newString(value string) *yaml.Node {
	return newScalar("!!str", value)
}

// mapGet looks up key in a mapping node, returning (valueNode, true) if
// present.
func mapGet(mapping *yaml.Node, key string) (*yaml.Node, bool) {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil, false
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1], true
		}
	}
	return nil, false
}

// mapSet sets key to value in a mapping node, replacing an existing entry
// in place or appending a new one.
func mapSet(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content, newString(key), value)
}

// mapDelete removes key from a mapping node if present.
func mapDelete(mapping *yaml.Node, key string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content = append(mapping.Content[:i], mapping.Content[i+2:]...)
			return
		}
	}
}

func getOrCreateMap(parent *yaml.Node, key string) *yaml.Node {
	if node, ok := mapGet(parent, key); ok && node.Kind == yaml.MappingNode {
		return node
	}
	node := newMapping()
	mapSet(parent, key, node)
	return node
}

// GetString returns the string value of a scalar key, and whether it is
// present.
func GetString(mapping *yaml.Node, key string) (string, bool) {
	node, ok := mapGet(mapping, key)
	if !ok || node.Kind != yaml.ScalarNode {
		return "", false
	}
	return node.Value, true
}

// SetString sets a plain string scalar at key.
func SetString(mapping *yaml.Node, key, value string) {
	mapSet(mapping, key, newString(value))
}

// SetNode sets an arbitrary node at key, for callers building sequences or
// nested mappings the other typed setters don't cover.
func SetNode(mapping *yaml.Node, key string, value *yaml.Node) {
	mapSet(mapping, key, value)
}

// NewStringSeq builds a plain YAML sequence of string scalars.
func NewStringSeq(values ...string) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, v := range values {
		seq.Content = append(seq.Content, newString(v))
	}
	return seq
}

// PortSpec is a single published:target port mapping extracted from a
// service's ports entry, in either the short "8080:80" form or the
// long mapping form ({published: 8080, target: 80}).
type PortSpec struct {
	Published int
	Target    int
}

// Ports extracts every port mapping declared on a service node. A /tcp or
// /udp suffix on a short entry is ignored; entries this package cannot
// parse (ranges, host-IP prefixes, bare container ports) are skipped.
func Ports(service *yaml.Node) []PortSpec {
	node, ok := mapGet(service, "ports")
	if !ok || node.Kind != yaml.SequenceNode {
		return nil
	}
	var out []PortSpec
	for _, item := range node.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			if spec, ok := parseShortPort(item.Value); ok {
				out = append(out, spec)
			}
		case yaml.MappingNode:
			published, _ := GetString(item, "published")
			target, _ := GetString(item, "target")
			p, errP := strconv.Atoi(strings.TrimSpace(published))
			t, errT := strconv.Atoi(strings.TrimSpace(target))
			if errP == nil && errT == nil {
				out = append(out, PortSpec{Published: p, Target: t})
			}
		}
	}
	return out
}

func parseShortPort(raw string) (PortSpec, bool) {
	raw = strings.TrimSuffix(raw, "/tcp")
	raw = strings.TrimSuffix(raw, "/udp")
	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return PortSpec{}, false
	}
	published, errP := strconv.Atoi(strings.TrimSpace(parts[0]))
	target, errT := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errP != nil || errT != nil {
		return PortSpec{}, false
	}
	return PortSpec{Published: published, Target: target}, true
}

// SetPortsOverride replaces a service's ports entry with an empty sequence
// tagged "!override", the docker-compose merge directive that suppresses
// host port publishing from a base file without deleting the key entirely.
func SetPortsOverride(service *yaml.Node) {
	mapSet(service, "ports", &yaml.Node{Kind: yaml.SequenceNode, Tag: "!override", Content: nil})
}

// AddNetwork attaches the named network to a service's networks list,
// creating the list if absent, without duplicating an existing entry.
func AddNetwork(service *yaml.Node, network string) {
	node, ok := mapGet(service, "networks")
	if !ok || node.Kind != yaml.SequenceNode {
		node = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		mapSet(service, "networks", node)
	}
	for _, item := range node.Content {
		if item.Value == network {
			return
		}
	}
	node.Content = append(node.Content, newString(network))
}

// DeclareExternalNetwork ensures the top-level networks section marks name
// as an externally managed network (the shared reverse-proxy network every
// stack attaches to).
func (d *Document) DeclareExternalNetwork(name string) {
	networks := getOrCreateMap(d.mapping(), "networks")
	entry := getOrCreateMap(networks, name)
	mapSet(entry, "external", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"})
}

// SortedInts is a small shared helper for callers building deterministic
// port lists (used by pkg/routing as well).
func SortedInts(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	return out
}

// SetLabel sets key=value on a service's labels, supporting both the
// mapping form (labels: {key: value}) and the list form
// (labels: ["key=value"]); a missing labels entry is created as a mapping.
func SetLabel(service *yaml.Node, key, value string) {
	node, ok := mapGet(service, "labels")
	if !ok {
		node = newMapping()
		mapSet(service, "labels", node)
	}
	switch node.Kind {
	case yaml.SequenceNode:
		prefix := key + "="
		for _, item := range node.Content {
			if strings.HasPrefix(item.Value, prefix) {
				item.Value = key + "=" + value
				return
			}
		}
		node.Content = append(node.Content, newString(key+"="+value))
	default:
		mapSet(node, key, newString(value))
	}
}
