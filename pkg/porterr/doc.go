/*
Package porterr reifies the error kinds used across the scheduler and
routing control plane: UserInput, PreconditionMissing, LockTimeout,
AdapterFailure, ExternalToolError, Corruption, and StaleRecord.

Every recoverable path wraps its cause in an *Error carrying one of these
kinds, so callers can branch on failure class with errors.As/errors.Is
instead of string-matching messages:

	if _, err := daemon.EnsureRunning(repo, ""); err != nil {
		var perr *porterr.Error
		if errors.As(err, &perr) && perr.Kind == porterr.KindLockTimeout {
			// retry or surface a specific message
		}
	}

This is new scaffolding: the rest of the ecosystem wraps errors with plain
fmt.Errorf("...: %w", err) and has no dedicated error-kind package, so
*Error follows that same wrap-with-%w convention underneath while adding
just enough structure to classify failures.
*/
package porterr
