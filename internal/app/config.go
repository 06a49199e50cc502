package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	// BaseURL is the backend root origin (no path). The REST prefix and the
	// websocket path are derived from it.
	BaseURL   string
	APIPrefix string

	LogLevel  string
	LogPretty bool

	HTTPTimeout time.Duration

	// TokenPath is the on-disk location of the persisted access credential.
	// Empty means the per-user default under os.UserConfigDir.
	TokenPath string
	// TokenPassphrase enables the sealed (encrypted-at-rest) token store.
	TokenPassphrase string

	// CachePath is the pebble directory for the local message cache.
	// Empty disables the cache.
	CachePath string

	WSDialTimeout time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		BaseURL:   EnvString("LOOM_BASE_URL", "http://localhost:3500"),
		APIPrefix: EnvString("LOOM_API_PREFIX", "/api/v1"),

		LogLevel:  EnvString("LOOM_LOG_LEVEL", "info"),
		LogPretty: EnvBool("LOOM_LOG_PRETTY", true),

		HTTPTimeout: EnvDuration("LOOM_HTTP_TIMEOUT", 30*time.Second),

		TokenPath:       EnvString("LOOM_TOKEN_PATH", ""),
		TokenPassphrase: EnvString("LOOM_TOKEN_PASSPHRASE", ""),

		CachePath: EnvString("LOOM_CACHE_PATH", ""),

		WSDialTimeout: EnvDuration("LOOM_WS_DIAL_TIMEOUT", 10*time.Second),
	}
}
