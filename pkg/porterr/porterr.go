package porterr

import (
	"errors"
	"fmt"
)

// Kind classifies a recoverable failure so callers can branch on failure
// class rather than message text.
type Kind string

const (
	// KindUserInput marks a malformed or missing argument.
	KindUserInput Kind = "user_input"
	// KindPreconditionMissing marks an environment precondition that was
	// not met: not in a repo, repo not initialized, a lock file's parent
	// directory missing.
	KindPreconditionMissing Kind = "precondition_missing"
	// KindLockTimeout marks a file lock that could not be acquired within
	// its budget.
	KindLockTimeout Kind = "lock_timeout"
	// KindAdapterFailure marks a failure raised by the task execution
	// adapter's prepare/start/cancel/cleanup methods.
	KindAdapterFailure Kind = "adapter_failure"
	// KindExternalToolError marks a subprocess (git, the reverse proxy)
	// exiting non-zero.
	KindExternalToolError Kind = "external_tool_error"
	// KindCorruption marks a JSON parse failure on a state file.
	KindCorruption Kind = "corruption"
	// KindStaleRecord marks a registry entry whose PID is no longer alive.
	KindStaleRecord Kind = "stale_record"
)

// Error wraps an underlying cause with a Kind and the operation it
// occurred in.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a Kind and the operation name it occurred in. op
// should name the function or component, e.g. "registry.registerProject".
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given Kind, unwrapping through
// any number of wrapping layers.
func Is(err error, kind Kind) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == kind
	}
	return false
}
