package hostservice

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdtzmn/port/pkg/filelock"
	"github.com/jdtzmn/port/pkg/log"
	"github.com/jdtzmn/port/pkg/porterr"
	"github.com/jdtzmn/port/pkg/registry"
	"github.com/jdtzmn/port/pkg/types"
)

const defaultGracePeriod = 5 * time.Second

// Options configures a single host auxiliary service invocation.
type Options struct {
	Repo        string
	Branch      string
	LogicalPort int
	Domain      string
	Command     []string
	GlobalDir   string
	GracePeriod time.Duration
}

// AllocatePort opens a transient listener on an OS-assigned port and
// immediately releases it, handing the caller a free port to bind its own
// process to.
func AllocatePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, porterr.New(porterr.KindPreconditionMissing, "hostservice.AllocatePort", err)
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, porterr.New(porterr.KindAdapterFailure, "hostservice.AllocatePort", fmt.Errorf("unexpected listener address type %T", l.Addr()))
	}
	return addr.Port, nil
}

func dynamicConfigPath(globalDir, repo, branch string, logicalPort int) string {
	name := fmt.Sprintf("host-%s-%d.yml", sanitize(branch), logicalPort)
	return filepath.Join(globalDir, "routing", "dynamic", name)
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '-')
		}
	}
	return string(out)
}

type dynamicConfig struct {
	HTTP dynamicHTTP `yaml:"http"`
}

type dynamicHTTP struct {
	Routers  map[string]dynamicRouter  `yaml:"routers"`
	Services map[string]dynamicService `yaml:"services"`
}

type dynamicRouter struct {
	Rule        string   `yaml:"rule"`
	EntryPoints []string `yaml:"entryPoints"`
	Service     string   `yaml:"service"`
}

type dynamicService struct {
	LoadBalancer dynamicLoadBalancer `yaml:"loadBalancer"`
}

type dynamicLoadBalancer struct {
	Servers []dynamicServer `yaml:"servers"`
}

type dynamicServer struct {
	URL string `yaml:"url"`
}

func writeDynamicConfig(opts Options, actualPort int) (string, error) {
	name := fmt.Sprintf("%s-%d", sanitize(opts.Branch), opts.LogicalPort)
	cfg := dynamicConfig{HTTP: dynamicHTTP{
		Routers: map[string]dynamicRouter{
			name: {
				Rule:        fmt.Sprintf("Host(`%s.%s`)", opts.Branch, opts.Domain),
				EntryPoints: []string{fmt.Sprintf("port%d", opts.LogicalPort)},
				Service:     name,
			},
		},
		Services: map[string]dynamicService{
			// Traefik runs containerized; 127.0.0.1 there is the container
			// itself, not the host process this config is routing to.
			name: {LoadBalancer: dynamicLoadBalancer{Servers: []dynamicServer{
				{URL: fmt.Sprintf("http://host.docker.internal:%d", actualPort)},
			}}},
		},
	}}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", porterr.New(porterr.KindCorruption, "hostservice.writeDynamicConfig", err)
	}
	path := dynamicConfigPath(opts.GlobalDir, opts.Repo, opts.Branch, opts.LogicalPort)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", porterr.New(porterr.KindPreconditionMissing, "hostservice.writeDynamicConfig", err)
	}
	if err := filelock.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// StopResult reports how a host service was stopped.
type StopResult string

const (
	StopAlreadyStopped StopResult = "already_stopped"
	StopSigterm        StopResult = "sigterm"
	StopSigkill        StopResult = "sigkill"
)

// StopHostService stops a registered host service from outside the process
// that started it: it signals the service's process group, polling for
// exit every 50ms up to gracePeriod before escalating to SIGKILL, and
// always removes the dynamic config file and registry entry on the way
// out, even if the PID was already dead.
func StopHostService(svc types.HostServiceEntry, gracePeriod time.Duration) (StopResult, error) {
	if gracePeriod <= 0 {
		gracePeriod = defaultGracePeriod
	}

	cleanup := func() error {
		if svc.ConfigFile != "" {
			_ = os.Remove(svc.ConfigFile)
		}
		return registry.UnregisterHostService(svc.Repo, svc.Branch, svc.LogicalPort)
	}

	if !pgidAlive(svc.PID) {
		if err := cleanup(); err != nil {
			return "", err
		}
		return StopAlreadyStopped, nil
	}

	_ = syscall.Kill(-svc.PID, syscall.SIGTERM)

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if !pgidAlive(svc.PID) {
			if err := cleanup(); err != nil {
				return "", err
			}
			return StopSigterm, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	_ = syscall.Kill(-svc.PID, syscall.SIGKILL)
	if err := cleanup(); err != nil {
		return "", err
	}
	return StopSigkill, nil
}

func pgidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Run allocates a port, writes the routing config, registers the service,
// spawns the user's command, and blocks until the command exits or a
// signal tells it to stop. It returns the process's effective exit code.
func Run(ctx context.Context, opts Options) (int, error) {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}
	if len(opts.Command) == 0 {
		return 1, porterr.New(porterr.KindUserInput, "hostservice.Run", fmt.Errorf("no command specified"))
	}

	actualPort, err := AllocatePort()
	if err != nil {
		return 1, err
	}

	configFile, err := writeDynamicConfig(opts, actualPort)
	if err != nil {
		return 1, err
	}
	defer os.Remove(configFile)

	entry := types.HostServiceEntry{
		Repo: opts.Repo, Branch: opts.Branch, LogicalPort: opts.LogicalPort,
		ActualPort: actualPort, PID: os.Getpid(), ConfigFile: configFile,
	}
	if err := registry.RegisterHostService(entry); err != nil {
		return 1, err
	}
	defer registry.UnregisterHostService(opts.Repo, opts.Branch, opts.LogicalPort)

	hostLog := log.WithBranch(opts.Branch)
	hostLog.Info().Int("actual_port", actualPort).Int("logical_port", opts.LogicalPort).Msg("host service starting")

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PORT=%d", actualPort))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 1, porterr.New(porterr.KindAdapterFailure, "hostservice.Run", err)
	}

	return waitForExit(ctx, cmd, opts.GracePeriod, hostLog)
}
