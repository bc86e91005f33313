package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/jdtzmn/port/pkg/log"
	"github.com/jdtzmn/port/pkg/porterr"
)

// GlobalDirEnv overrides the host-wide global directory; used by tests.
const GlobalDirEnv = "PORT_GLOBAL_DIR"

// ConfigFileName is the per-repo config file, relative to <repo>/.port/.
const ConfigFileName = "config.jsonc"

// TaskConfig holds the live-reloadable task scheduling parameters.
type TaskConfig struct {
	TimeoutMs           int `mapstructure:"timeoutMs"`
	IdleStopMs          int `mapstructure:"idleStopMs"`
	ArtifactRetentionMs int `mapstructure:"artifactRetentionMs"`
}

// SubscribersConfig names which built-in/extension subscribers are active.
type SubscribersConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Consumers []string `mapstructure:"consumers"`
}

// RepoConfig is the per-repository config.jsonc document.
type RepoConfig struct {
	Domain      string            `mapstructure:"domain"`
	ComposePath string            `mapstructure:"composePath"`
	TCPPorts    []int             `mapstructure:"tcpPorts"`
	Task        TaskConfig        `mapstructure:"task"`
	Subscribers SubscribersConfig `mapstructure:"subscribers"`
}

const (
	defaultTaskTimeoutMs       = 30 * 60 * 1000
	defaultTaskIdleStopMs      = 10 * 60 * 1000
	defaultArtifactRetentionMs = 14 * 24 * 60 * 60 * 1000
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	v.SetDefault("domain", "port")
	v.SetDefault("composePath", "docker-compose.yml")
	v.SetDefault("task.timeoutMs", defaultTaskTimeoutMs)
	v.SetDefault("task.idleStopMs", defaultTaskIdleStopMs)
	v.SetDefault("task.artifactRetentionMs", defaultArtifactRetentionMs)
	v.SetDefault("subscribers.enabled", false)
	return v
}

// Load reads and parses <repo>/.port/config.jsonc. A missing file yields a
// RepoConfig built entirely from defaults.
func Load(repoRoot string) (*RepoConfig, error) {
	path := filepath.Join(repoRoot, ".port", ConfigFileName)
	v := newViper()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var cfg RepoConfig
			if uerr := v.Unmarshal(&cfg); uerr != nil {
				return nil, porterr.New(porterr.KindCorruption, "config.Load", uerr)
			}
			return &cfg, nil
		}
		return nil, porterr.New(porterr.KindPreconditionMissing, "config.Load", err)
	}

	if err := v.ReadConfig(bytes.NewReader(stripJSONC(raw))); err != nil {
		return nil, porterr.New(porterr.KindCorruption, "config.Load", err)
	}

	var cfg RepoConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, porterr.New(porterr.KindCorruption, "config.Load", err)
	}
	return &cfg, nil
}

// Watcher holds the current RepoConfig and refreshes task/subscriber fields
// in place when config.jsonc changes on disk.
type Watcher struct {
	mu   sync.RWMutex
	cfg  *RepoConfig
	v    *viper.Viper
	path string
}

// NewWatcher loads repoRoot's config once and arms fsnotify-backed live
// reload for task.timeoutMs, task.idleStopMs, and subscribers. It returns
// the Watcher even if the config file does not yet exist, with defaults in
// effect.
func NewWatcher(repoRoot string) (*Watcher, error) {
	path := filepath.Join(repoRoot, ".port", ConfigFileName)
	v := newViper()

	if raw, err := os.ReadFile(path); err == nil {
		if err := v.ReadConfig(bytes.NewReader(stripJSONC(raw))); err != nil {
			return nil, porterr.New(porterr.KindCorruption, "config.NewWatcher", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, porterr.New(porterr.KindPreconditionMissing, "config.NewWatcher", err)
	}

	var cfg RepoConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, porterr.New(porterr.KindCorruption, "config.NewWatcher", err)
	}

	w := &Watcher{cfg: &cfg, v: v, path: path}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.OnConfigChange(func(fsnotify.Event) {
			w.reload()
		})
		v.WatchConfig()
	}

	return w, nil
}

func (w *Watcher) reload() {
	componentLog := log.WithComponent("config")

	raw, err := os.ReadFile(w.path)
	if err != nil {
		componentLog.Warn().Err(err).Msg("config reload: read failed, keeping previous values")
		return
	}

	nv := newViper()
	if err := nv.ReadConfig(bytes.NewReader(stripJSONC(raw))); err != nil {
		componentLog.Warn().Err(err).Msg("config reload: parse failed, keeping previous values")
		return
	}

	var fresh RepoConfig
	if err := nv.Unmarshal(&fresh); err != nil {
		componentLog.Warn().Err(err).Msg("config reload: unmarshal failed, keeping previous values")
		return
	}

	w.mu.Lock()
	w.cfg.Task = fresh.Task
	w.cfg.Subscribers = fresh.Subscribers
	w.mu.Unlock()

	componentLog.Info().Msg("config reloaded")
}

// Current returns a snapshot of the live config.
func (w *Watcher) Current() RepoConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return *w.cfg
}

// GlobalDir resolves the host-wide state directory: PORT_GLOBAL_DIR if set,
// otherwise <home>/.port.
func GlobalDir() (string, error) {
	if dir := os.Getenv(GlobalDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", porterr.New(porterr.KindPreconditionMissing, "config.GlobalDir", fmt.Errorf("resolve home directory: %w", err))
	}
	return filepath.Join(home, ".port"), nil
}
