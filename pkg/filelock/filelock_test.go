package filelock

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdtzmn/port/pkg/porterr"
)

func TestWithFileLockRunsCallback(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")
	ran := false

	err := WithFileLock(lockPath, func() error {
		ran = true
		return nil
	}, Options{})

	require.NoError(t, err)
	assert.True(t, ran)

	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err), "lock file should be removed after release")
}

func TestWithFileLockTimesOutOnCollision(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()

	err = WithFileLock(lockPath, func() error { return nil }, Options{
		Timeout:    50 * time.Millisecond,
		RetryDelay: 10 * time.Millisecond,
	})

	require.Error(t, err)
	assert.True(t, porterr.Is(err, porterr.KindLockTimeout))
}

func TestWithFileLockSerializesConcurrentCallers(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")
	var counter int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := WithFileLock(lockPath, func() error {
				cur := atomic.AddInt64(&counter, 1)
				time.Sleep(time.Millisecond)
				assert.EqualValues(t, cur, atomic.LoadInt64(&counter))
				return nil
			}, Options{Timeout: 2 * time.Second, RetryDelay: 5 * time.Millisecond})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 20, counter)
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))

	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o644))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp files")
}
