package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/jdtzmn/port/pkg/config"
	"github.com/jdtzmn/port/pkg/filelock"
	"github.com/jdtzmn/port/pkg/porterr"
	"github.com/jdtzmn/port/pkg/types"
)

const (
	fileName = "registry.json"
	lockName = "registry.lock"
)

func paths() (dataFile, lockFile string, err error) {
	dir, err := config.GlobalDir()
	if err != nil {
		return "", "", err
	}
	return filepath.Join(dir, fileName), filepath.Join(dir, lockName), nil
}

func read(path string) (*types.GlobalRegistry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &types.GlobalRegistry{}, nil
		}
		return nil, porterr.New(porterr.KindPreconditionMissing, "registry.read", err)
	}
	var reg types.GlobalRegistry
	if err := json.Unmarshal(raw, &reg); err != nil {
		// Corrupt file: treated as empty, observable only on this read.
		return &types.GlobalRegistry{}, nil
	}
	return &reg, nil
}

func write(path string, reg *types.GlobalRegistry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return porterr.New(porterr.KindCorruption, "registry.write", err)
	}
	data = append(data, '\n')
	return filelock.WriteFileAtomic(path, data, 0o644)
}

func mutate(fn func(*types.GlobalRegistry)) error {
	dataFile, lockFile, err := paths()
	if err != nil {
		return err
	}
	return filelock.WithFileLock(lockFile, func() error {
		reg, err := read(dataFile)
		if err != nil {
			return err
		}
		fn(reg)
		return write(dataFile, reg)
	}, filelock.Options{})
}

// RegisterProject upserts the (repo, branch) entry, replacing its ports.
func RegisterProject(repo, branch string, ports []int) error {
	sorted := uniqueSortedInts(ports)
	return mutate(func(reg *types.GlobalRegistry) {
		for i := range reg.Projects {
			if reg.Projects[i].Repo == repo && reg.Projects[i].Branch == branch {
				reg.Projects[i].Ports = sorted
				return
			}
		}
		reg.Projects = append(reg.Projects, types.ProjectEntry{Repo: repo, Branch: branch, Ports: sorted})
	})
}

// UnregisterProject removes the matching entry; no error if absent.
func UnregisterProject(repo, branch string) error {
	return mutate(func(reg *types.GlobalRegistry) {
		out := reg.Projects[:0]
		for _, p := range reg.Projects {
			if p.Repo == repo && p.Branch == branch {
				continue
			}
			out = append(out, p)
		}
		reg.Projects = out
	})
}

// RegisterHostService upserts by (repo, branch, logicalPort).
func RegisterHostService(svc types.HostServiceEntry) error {
	return mutate(func(reg *types.GlobalRegistry) {
		for i := range reg.HostServices {
			h := &reg.HostServices[i]
			if h.Repo == svc.Repo && h.Branch == svc.Branch && h.LogicalPort == svc.LogicalPort {
				*h = svc
				return
			}
		}
		reg.HostServices = append(reg.HostServices, svc)
	})
}

// UnregisterHostService removes the matching entry; no error if absent.
func UnregisterHostService(repo, branch string, logicalPort int) error {
	return mutate(func(reg *types.GlobalRegistry) {
		out := reg.HostServices[:0]
		for _, h := range reg.HostServices {
			if h.Repo == repo && h.Branch == branch && h.LogicalPort == logicalPort {
				continue
			}
			out = append(out, h)
		}
		reg.HostServices = out
	})
}

// GetAllProjects returns every registered project.
func GetAllProjects() ([]types.ProjectEntry, error) {
	dataFile, _, err := paths()
	if err != nil {
		return nil, err
	}
	reg, err := read(dataFile)
	if err != nil {
		return nil, err
	}
	return reg.Projects, nil
}

// HasRegisteredProjects reports whether any project is registered.
func HasRegisteredProjects() (bool, error) {
	projects, err := GetAllProjects()
	if err != nil {
		return false, err
	}
	return len(projects) > 0, nil
}

// GetProjectCount returns the number of registered projects.
func GetProjectCount() (int, error) {
	projects, err := GetAllProjects()
	if err != nil {
		return 0, err
	}
	return len(projects), nil
}

// GetHostService returns the entry for (repo, branch, logicalPort), or nil
// if absent.
func GetHostService(repo, branch string, logicalPort int) (*types.HostServiceEntry, error) {
	all, err := GetAllHostServices()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Repo == repo && all[i].Branch == branch && all[i].LogicalPort == logicalPort {
			entry := all[i]
			return &entry, nil
		}
	}
	return nil, nil
}

// GetHostServicesForWorktree returns every live host service for (repo, branch).
func GetHostServicesForWorktree(repo, branch string) ([]types.HostServiceEntry, error) {
	all, err := GetAllHostServices()
	if err != nil {
		return nil, err
	}
	var out []types.HostServiceEntry
	for _, h := range all {
		if h.Repo == repo && h.Branch == branch {
			out = append(out, h)
		}
	}
	return out, nil
}

// GetAllHostServices returns every host service, sweeping stale (dead-PID)
// entries first.
func GetAllHostServices() ([]types.HostServiceEntry, error) {
	if err := Sweep(); err != nil {
		return nil, err
	}
	dataFile, _, err := paths()
	if err != nil {
		return nil, err
	}
	reg, err := read(dataFile)
	if err != nil {
		return nil, err
	}
	return reg.HostServices, nil
}

// Sweep removes every host-service entry whose PID is no longer alive.
func Sweep() error {
	return mutate(func(reg *types.GlobalRegistry) {
		out := reg.HostServices[:0]
		for _, h := range reg.HostServices {
			if isAlive(h.PID) {
				out = append(out, h)
			}
		}
		reg.HostServices = out
	})
}

func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func uniqueSortedInts(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
