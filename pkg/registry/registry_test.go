package registry

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdtzmn/port/pkg/config"
	"github.com/jdtzmn/port/pkg/types"
)

func withGlobalDir(t *testing.T) {
	t.Helper()
	t.Setenv(config.GlobalDirEnv, t.TempDir())
}

func TestRegisterAndUnregisterProject(t *testing.T) {
	withGlobalDir(t)

	require.NoError(t, RegisterProject("/repo", "feature-a", []int{3000, 3000, 3001}))
	projects, err := GetAllProjects()
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, []int{3000, 3001}, projects[0].Ports)

	require.NoError(t, RegisterProject("/repo", "feature-a", []int{4000}))
	projects, err = GetAllProjects()
	require.NoError(t, err)
	require.Len(t, projects, 1, "upsert must not duplicate the key")
	assert.Equal(t, []int{4000}, projects[0].Ports)

	require.NoError(t, UnregisterProject("/repo", "feature-a"))
	projects, err = GetAllProjects()
	require.NoError(t, err)
	assert.Empty(t, projects)

	require.NoError(t, UnregisterProject("/repo", "does-not-exist"))
}

func TestConcurrentRegisterProjectPreservesAllEntries(t *testing.T) {
	withGlobalDir(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := RegisterProject("/repo", fmt.Sprintf("branch-%d", i), []int{3000 + i})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := GetProjectCount()
	require.NoError(t, err)
	assert.Equal(t, 20, count)
}

func TestHostServiceLifecycleAndSweep(t *testing.T) {
	withGlobalDir(t)

	require.NoError(t, RegisterHostService(types.HostServiceEntry{
		Repo: "/repo", Branch: "feature-a", LogicalPort: 9000, ActualPort: 54321, PID: os.Getpid(),
	}))

	svc, err := GetHostService("/repo", "feature-a", 9000)
	require.NoError(t, err)
	require.NotNil(t, svc)
	assert.Equal(t, 54321, svc.ActualPort)

	require.NoError(t, RegisterHostService(types.HostServiceEntry{
		Repo: "/repo", Branch: "feature-a", LogicalPort: 9001, ActualPort: 1, PID: 999999999,
	}))

	all, err := GetAllHostServices()
	require.NoError(t, err)
	require.Len(t, all, 1, "stale PID entry must be swept on read")
	assert.Equal(t, 9000, all[0].LogicalPort)

	require.NoError(t, UnregisterHostService("/repo", "feature-a", 9000))
	all, err = GetAllHostServices()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCorruptRegistryTreatedAsEmpty(t *testing.T) {
	withGlobalDir(t)

	dataFile, _, err := paths()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dataFile[:len(dataFile)-len(fileName)], 0o755))
	require.NoError(t, os.WriteFile(dataFile, []byte("{not json"), 0o644))

	projects, err := GetAllProjects()
	require.NoError(t, err)
	assert.Empty(t, projects)
}
