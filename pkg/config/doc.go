/*
Package config loads the per-repository config.jsonc and resolves the
host-wide global directory.

config.jsonc is JSON with `//` line comments and block comments, which viper's json
codec does not accept directly; Load strips comments with a small
character-scanner pass (stripJSONC) before handing the bytes to viper, then
unmarshals into RepoConfig via mapstructure tags.

NewWatcher wires viper.WatchConfig (backed by fsnotify) so the Watcher's
own task.timeoutMs, task.idleStopMs, and subscribers values follow edits to
the file. `daemon run` reads the Watcher's values once at startup, so a
running daemon does not pick up changes to any field without a restart.

GlobalDir resolves the host-wide state directory the same way the rest of
the ecosystem resolves a data directory: a fixed default, overridable by an
environment variable (PORT_GLOBAL_DIR) for tests.
*/
package config
