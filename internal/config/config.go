// Package config loads and validates the seasync configuration file and
// resolves platform-specific default paths.
package config

// ConflictStrategyLastModifiedWins is the only implemented conflict
// strategy: the side with the newer mtime overwrites the other.
const ConflictStrategyLastModifiedWins = "last_modified_wins"

// Config is the full configuration, populated from defaults, the TOML
// config file, and environment overrides, in that order.
type Config struct {
	// ServerURL is the Seafile server root, e.g. "https://seafile.example.com".
	// Usually written by `seasync login`.
	ServerURL string `toml:"server_url"`

	// Username is the account email. Informational; the API token in the
	// secret store is what authenticates requests.
	Username string `toml:"username"`

	// LocalSyncPath is the root under which per-library folders are
	// materialized. Supports a leading "~".
	LocalSyncPath string `toml:"local_sync_path"`

	// SyncIntervalSeconds is the periodic cycle cadence.
	SyncIntervalSeconds int `toml:"sync_interval_seconds"`

	// FileChangeDebounceSeconds is the quiet-time window after a watcher
	// event before a cycle is triggered.
	FileChangeDebounceSeconds float64 `toml:"file_change_debounce_seconds"`

	// MaxConcurrentTransfers is reserved for future parallel transfers.
	// Validated but not consulted; transfers are currently sequential.
	MaxConcurrentTransfers int `toml:"max_concurrent_transfers"`

	// ConflictStrategy selects how concurrent edits are resolved.
	// Only "last_modified_wins" is implemented.
	ConflictStrategy string `toml:"conflict_strategy"`

	// DatabasePath is the sync-state database location.
	DatabasePath string `toml:"database_path"`

	// Notifications enables the websocket subscription to the server's
	// notification endpoint for near-instant remote-change triggers.
	Notifications bool `toml:"notifications"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		LocalSyncPath:             DefaultSyncDir(),
		SyncIntervalSeconds:       300,
		FileChangeDebounceSeconds: 2.0,
		MaxConcurrentTransfers:    4,
		ConflictStrategy:          ConflictStrategyLastModifiedWins,
		DatabasePath:              DefaultDatabasePath(),
		Notifications:             true,
	}
}
