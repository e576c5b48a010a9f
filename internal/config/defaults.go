package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8090
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 1024 * 1024 // 1MB

	// Database defaults.
	DefaultDBPath       = "tenantcore.db"
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Dispatch defaults.
	DefaultProcedureTimeout = 30 * time.Second

	// Trigger defaults.
	DefaultTriggerTimeout  = 5 * time.Second
	DefaultRetention       = 30 * 24 * time.Hour
	DefaultCleanupSchedule = "@hourly"

	// Auth defaults.
	DefaultAccessTTL = 15 * time.Minute
	DefaultJWTIssuer = "tenantcore"

	// Logging defaults.
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// DefaultModules are the catalog modules every host loads unless configured otherwise.
var DefaultModules = []string{"builtin/roles", "builtin/platform", "builtin/triggers"}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Database: DatabaseConfig{
			Path:            DefaultDBPath,
			WALMode:         true,
			CacheSize:       DefaultCacheSize,
			BusyTimeout:     DefaultBusyTimeout,
			ForeignKeys:     true,
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: 0, // No limit
		},
		Dispatch: DispatchConfig{
			Timeout: DefaultProcedureTimeout,
			Modules: append([]string(nil), DefaultModules...),
		},
		Triggers: TriggersConfig{
			Timeout:         DefaultTriggerTimeout,
			Retention:       DefaultRetention,
			CleanupSchedule: DefaultCleanupSchedule,
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				AccessTTL: DefaultAccessTTL,
				Issuer:    DefaultJWTIssuer,
			},
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
