package routing

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/jdtzmn/port/pkg/compose"
	"github.com/jdtzmn/port/pkg/filelock"
	"github.com/jdtzmn/port/pkg/metrics"
	"github.com/jdtzmn/port/pkg/porterr"
)

const (
	staticConfigName = "traefik.yml"
	composeFileName  = "docker-compose.yml"
	lockName         = "routing.lock"
	dynamicDirName   = "dynamic"
	dashboardPort    = 8080
)

var entryPointPattern = regexp.MustCompile(`^port(\d+)$`)

// webEntryPointName/Address is the entrypoint every static config keeps
// regardless of which per-branch ports are registered (§4.C).
const (
	webEntryPointName    = "web"
	webEntryPointAddress = ":80"
)

// EntryPoint is a single Traefik static-config entrypoint.
type EntryPoint struct {
	Address string `yaml:"address"`
}

type fileProvider struct {
	Directory string `yaml:"directory"`
	Watch     bool   `yaml:"watch"`
}

type dockerProvider struct {
	ExposedByDefault bool `yaml:"exposedByDefault"`
}

// providers uses pointers so a freshly-unmarshaled config with neither
// block present is distinguishable from one that configures them with
// zero values.
type providers struct {
	Docker *dockerProvider `yaml:"docker,omitempty"`
	File   *fileProvider   `yaml:"file,omitempty"`
}

type staticConfig struct {
	EntryPoints map[string]EntryPoint `yaml:"entryPoints"`
	Providers   providers             `yaml:"providers"`
}

func paths(globalDir string) (staticFile, composeFile, lockFile, dynamicDir string) {
	root := filepath.Join(globalDir, "routing")
	return filepath.Join(root, staticConfigName),
		filepath.Join(root, composeFileName),
		filepath.Join(root, lockName),
		filepath.Join(root, dynamicDirName)
}

// EnsureDynamicDir creates the per-stack dynamic config directory, returning
// its path.
func EnsureDynamicDir(globalDir string) (string, error) {
	_, _, _, dynamicDir := paths(globalDir)
	if err := os.MkdirAll(dynamicDir, 0o755); err != nil {
		return "", porterr.New(porterr.KindPreconditionMissing, "routing.EnsureDynamicDir", err)
	}
	return dynamicDir, nil
}

func entryPointName(port int) string {
	return fmt.Sprintf("port%d", port)
}

func readStaticConfig(path string) (*staticConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &staticConfig{EntryPoints: map[string]EntryPoint{}}, nil
		}
		return nil, porterr.New(porterr.KindPreconditionMissing, "routing.readStaticConfig", err)
	}
	var cfg staticConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, porterr.New(porterr.KindCorruption, "routing.readStaticConfig", err)
	}
	if cfg.EntryPoints == nil {
		cfg.EntryPoints = map[string]EntryPoint{}
	}
	return &cfg, nil
}

func writeStaticConfig(path string, cfg *staticConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return porterr.New(porterr.KindCorruption, "routing.writeStaticConfig", err)
	}
	return filelock.WriteFileAtomic(path, data, 0o644)
}

// GetConfiguredPorts returns the sorted, unique set of ports already
// declared as port<N> entrypoints in the static config.
func GetConfiguredPorts(globalDir string) ([]int, error) {
	staticFile, _, _, _ := paths(globalDir)
	cfg, err := readStaticConfig(staticFile)
	if err != nil {
		return nil, err
	}
	return portsFromEntryPoints(cfg.EntryPoints), nil
}

func portsFromEntryPoints(entryPoints map[string]EntryPoint) []int {
	var ports []int
	for name := range entryPoints {
		if m := entryPointPattern.FindStringSubmatch(name); m != nil {
			if port, err := strconv.Atoi(m[1]); err == nil {
				ports = append(ports, port)
			}
		}
	}
	sort.Ints(ports)
	return ports
}

// EnsurePorts merges required into the static config's entrypoints and, if
// this grows the configured set (or repairs a missing file, web
// entrypoint, or provider), rewrites the static config and the proxy's own
// compose file. It reports whether a write occurred.
//
// Per §4.C the no-op case requires every one of: required ⊆ configured,
// both files present on disk, and the file provider already configured —
// not just the port set matching, so a deleted compose file or a static
// config stripped of its provider block gets repaired rather than treated
// as already satisfied.
func EnsurePorts(globalDir string, required []int) (bool, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	staticFile, composeFile, lockFile, dynamicDir := paths(globalDir)
	if err := os.MkdirAll(filepath.Dir(staticFile), 0o755); err != nil {
		return false, porterr.New(porterr.KindPreconditionMissing, "routing.EnsurePorts", err)
	}

	var changed bool
	err := filelock.WithFileLock(lockFile, func() error {
		cfg, err := readStaticConfig(staticFile)
		if err != nil {
			return err
		}

		before := portsFromEntryPoints(cfg.EntryPoints)
		if isSatisfied(cfg, required, before, staticFile, composeFile) {
			return nil
		}

		if cfg.EntryPoints == nil {
			cfg.EntryPoints = map[string]EntryPoint{}
		}
		cfg.EntryPoints[webEntryPointName] = EntryPoint{Address: webEntryPointAddress}
		for _, port := range required {
			name := entryPointName(port)
			if _, ok := cfg.EntryPoints[name]; !ok {
				cfg.EntryPoints[name] = EntryPoint{Address: fmt.Sprintf(":%d", port)}
			}
		}
		after := portsFromEntryPoints(cfg.EntryPoints)

		cfg.Providers = providers{
			Docker: &dockerProvider{ExposedByDefault: false},
			File:   &fileProvider{Directory: dynamicDir, Watch: true},
		}
		if err := writeStaticConfig(staticFile, cfg); err != nil {
			return err
		}
		if err := writeProxyCompose(composeFile, after); err != nil {
			return err
		}
		changed = true
		return nil
	}, filelock.Options{})

	if changed {
		metrics.ReconciliationCyclesTotal.Inc()
	}
	return changed, err
}

// isSatisfied reports whether cfg already covers required without needing
// a rewrite: every required port already has an entrypoint, the web
// entrypoint is present, the docker and file providers are configured, and
// both on-disk files exist.
func isSatisfied(cfg *staticConfig, required, configured []int, staticFile, composeFile string) bool {
	if !isSubset(required, configured) {
		return false
	}
	if ep, ok := cfg.EntryPoints[webEntryPointName]; !ok || ep.Address != webEntryPointAddress {
		return false
	}
	if cfg.Providers.File == nil || cfg.Providers.Docker == nil {
		return false
	}
	if _, err := os.Stat(staticFile); err != nil {
		return false
	}
	if _, err := os.Stat(composeFile); err != nil {
		return false
	}
	return true
}

func isSubset(required, configured []int) bool {
	set := make(map[int]bool, len(configured))
	for _, p := range configured {
		set[p] = true
	}
	for _, p := range required {
		if !set[p] {
			return false
		}
	}
	return true
}

// InitFiles bootstraps the static config, dynamic directory, and proxy
// compose file if they do not already exist. It is a no-op once the proxy
// has been initialized.
func InitFiles(globalDir string, initialPorts []int) error {
	if _, err := EnsureDynamicDir(globalDir); err != nil {
		return err
	}
	staticFile, _, _, _ := paths(globalDir)
	if _, err := os.Stat(staticFile); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return porterr.New(porterr.KindPreconditionMissing, "routing.InitFiles", err)
	}
	_, err := EnsurePorts(globalDir, initialPorts)
	return err
}

func writeProxyCompose(path string, ports []int) error {
	doc, err := compose.Parse(nil)
	if err != nil {
		return err
	}
	doc.SetService("traefik", proxyServiceNode(ports))
	doc.DeclareExternalNetwork("proxy")

	data, err := doc.Marshal()
	if err != nil {
		return err
	}
	return filelock.WriteFileAtomic(path, data, 0o644)
}

func proxyServiceNode(ports []int) *yaml.Node {
	service := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	compose.SetString(service, "image", "traefik:v3.1")
	compose.SetString(service, "container_name", "port-routing-proxy")

	portStrings := []string{fmt.Sprintf("%d:%d", dashboardPort, dashboardPort)}
	for _, p := range ports {
		portStrings = append(portStrings, fmt.Sprintf("%d:%d", p, p))
	}
	compose.SetNode(service, "ports", compose.NewStringSeq(portStrings...))

	compose.SetNode(service, "volumes", compose.NewStringSeq(
		fmt.Sprintf("./%s:/etc/traefik/%s:ro", staticConfigName, staticConfigName),
		fmt.Sprintf("./%s:/etc/traefik/%s:ro", dynamicDirName, dynamicDirName),
	))

	compose.AddNetwork(service, "proxy")
	return service
}

