package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "SEASYNC_CONFIG"
	EnvServerURL = "SEASYNC_SERVER_URL"
	EnvSyncDir   = "SEASYNC_SYNC_DIR"
	EnvDatabase  = "SEASYNC_DATABASE"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // SEASYNC_CONFIG: override config file path
	ServerURL    string // SEASYNC_SERVER_URL: server root override
	SyncDir      string // SEASYNC_SYNC_DIR: sync directory override
	DatabasePath string // SEASYNC_DATABASE: state database override
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ServerURL:    os.Getenv(EnvServerURL),
		SyncDir:      os.Getenv(EnvSyncDir),
		DatabasePath: os.Getenv(EnvDatabase),
	}
}
