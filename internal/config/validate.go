package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks a Config for values that would misbehave at runtime.
// Error messages name the offending key and say how to fix it.
func Validate(cfg *Config) error {
	if cfg.ServerURL != "" {
		u, err := url.Parse(cfg.ServerURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server_url %q is not a valid URL (expected e.g. https://seafile.example.com)", cfg.ServerURL)
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("server_url scheme %q is not supported (use http or https)", u.Scheme)
		}
	}

	if strings.TrimSpace(cfg.LocalSyncPath) == "" {
		return fmt.Errorf("local_sync_path must not be empty")
	}

	if cfg.SyncIntervalSeconds <= 0 {
		return fmt.Errorf("sync_interval_seconds must be positive, got %d", cfg.SyncIntervalSeconds)
	}

	if cfg.FileChangeDebounceSeconds < 0 {
		return fmt.Errorf("file_change_debounce_seconds must not be negative, got %g", cfg.FileChangeDebounceSeconds)
	}

	if cfg.MaxConcurrentTransfers <= 0 {
		return fmt.Errorf("max_concurrent_transfers must be positive, got %d", cfg.MaxConcurrentTransfers)
	}

	if cfg.ConflictStrategy != ConflictStrategyLastModifiedWins {
		return fmt.Errorf("conflict_strategy %q is not supported (only %q is implemented)",
			cfg.ConflictStrategy, ConflictStrategyLastModifiedWins)
	}

	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return fmt.Errorf("database_path must not be empty")
	}

	return nil
}
