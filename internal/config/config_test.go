package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	assert.Equal(t, 300, cfg.SyncIntervalSeconds)
	assert.InDelta(t, 2.0, cfg.FileChangeDebounceSeconds, 0.001)
	assert.Equal(t, 4, cfg.MaxConcurrentTransfers)
	assert.Equal(t, ConflictStrategyLastModifiedWins, cfg.ConflictStrategy)
	assert.NotEmpty(t, cfg.LocalSyncPath)
	assert.NotEmpty(t, cfg.DatabasePath)
	assert.True(t, cfg.Notifications)
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url = "https://seafile.example.com"
username = "alice@example.com"
sync_interval_seconds = 60
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://seafile.example.com", cfg.ServerURL)
	assert.Equal(t, 60, cfg.SyncIntervalSeconds)
	// Untouched keys keep their defaults.
	assert.InDelta(t, 2.0, cfg.FileChangeDebounceSeconds, 0.001)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`sync_intervall_seconds = 60`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config keys")
	assert.Contains(t, err.Error(), "sync_intervall_seconds")
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.SyncIntervalSeconds)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad server url", func(c *Config) { c.ServerURL = "::not-a-url" }, "server_url"},
		{"ftp scheme", func(c *Config) { c.ServerURL = "ftp://x" }, "scheme"},
		{"empty sync path", func(c *Config) { c.LocalSyncPath = " " }, "local_sync_path"},
		{"zero interval", func(c *Config) { c.SyncIntervalSeconds = 0 }, "sync_interval_seconds"},
		{"negative debounce", func(c *Config) { c.FileChangeDebounceSeconds = -1 }, "file_change_debounce"},
		{"zero transfers", func(c *Config) { c.MaxConcurrentTransfers = 0 }, "max_concurrent_transfers"},
		{"unknown strategy", func(c *Config) { c.ConflictStrategy = "newest_wins" }, "conflict_strategy"},
		{"empty db path", func(c *Config) { c.DatabasePath = "" }, "database_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolveEnvOverrides(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`server_url = "https://file.example.com"`), 0o644))

	cfg, err := Resolve(EnvOverrides{
		ConfigPath: cfgPath,
		ServerURL:  "https://other.example.com",
		SyncDir:    "/tmp/sync",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://other.example.com", cfg.ServerURL)
	assert.Equal(t, "/tmp/sync", cfg.LocalSyncPath)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg := DefaultConfig()
	cfg.ServerURL = "https://seafile.example.com"
	cfg.Username = "alice@example.com"

	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestExpandHome(t *testing.T) {
	t.Parallel()

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "Seafile"), ExpandHome("~/Seafile"))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
}
