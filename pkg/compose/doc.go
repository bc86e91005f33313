/*
Package compose provides a thin, order-preserving wrapper around a parsed
docker-compose YAML document, built on gopkg.in/yaml.v3's node tree (the
same library the teacher uses for its own YAML resource parsing).

Keeping the raw *yaml.Node tree rather than unmarshaling into a typed
struct matters for two reasons: the override generator (pkg/override) must
inject a literal `!override` tag on an empty ports sequence, which only the
node API exposes, and round-tripping through a typed struct would silently
drop unknown compose keys this spec does not model.

This package only understands the small slice of the compose schema the
routing control plane needs: services, their container_name, ports, and
networks. Everything else in the document passes through untouched.
*/
package compose
