// Package workerentry implements §4.K, the worker-mode entry point spawned
// by pkg/adapter.LocalAdapter.Start: it runs a single task to a terminal
// status inside its prepared worktree and writes its artifacts.
package workerentry
