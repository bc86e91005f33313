package filelock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jdtzmn/port/pkg/porterr"
)

// DefaultTimeout is how long WithFileLock retries before giving up.
const DefaultTimeout = 10 * time.Second

// DefaultRetryDelay is how long WithFileLock waits between retries.
const DefaultRetryDelay = 25 * time.Millisecond

// Options configures WithFileLock. The zero value uses the package
// defaults.
type Options struct {
	Timeout    time.Duration
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// WithFileLock acquires an exclusive lock at path by creating it with
// open-exclusive semantics, retrying on collision until opts.Timeout
// elapses, then runs fn and releases the lock. It is not reentrant: a
// caller already holding the lock that calls WithFileLock on the same path
// again will time out.
func WithFileLock(path string, fn func() error, opts Options) error {
	opts = opts.withDefaults()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return porterr.New(porterr.KindPreconditionMissing, "filelock.WithFileLock", err)
	}

	deadline := time.Now().Add(opts.Timeout)
	var f *os.File
	for {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return porterr.New(porterr.KindPreconditionMissing, "filelock.WithFileLock", err)
		}
		if time.Now().After(deadline) {
			return porterr.New(porterr.KindLockTimeout, "filelock.WithFileLock",
				fmt.Errorf("timed out acquiring lock %q after %s", path, opts.Timeout))
		}
		time.Sleep(opts.RetryDelay)
	}

	defer func() {
		_ = f.Close()
		_ = os.Remove(path)
	}()

	return fn()
}

// WriteFileAtomic writes data to a uniquely-named temp file in path's
// directory, then renames it onto path. The temp file is removed on any
// failure short of a successful rename; a missing-file error during
// cleanup is ignored.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return porterr.New(porterr.KindPreconditionMissing, "filelock.WriteFileAtomic", err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%d.%s.tmp", filepath.Base(path), os.Getpid(), uuid.NewString()))

	if err := os.WriteFile(tmp, data, perm); err != nil {
		_ = os.Remove(tmp)
		return porterr.New(porterr.KindExternalToolError, "filelock.WriteFileAtomic", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			return porterr.New(porterr.KindExternalToolError, "filelock.WriteFileAtomic", rmErr)
		}
		return porterr.New(porterr.KindExternalToolError, "filelock.WriteFileAtomic", err)
	}
	return nil
}
