// Package config provides configuration management for tenantcore.
package config

import (
	"path/filepath"
	"strconv"
	"time"
)

// Config is the root configuration structure for tenantcore.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Triggers TriggersConfig `mapstructure:"triggers"`
	Roles    RolesConfig    `mapstructure:"roles"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// Dir is the directory of the loaded config file, empty when defaults
	// and env were the only sources.
	Dir string `mapstructure:"-"`
}

// Resolve interprets a relative path against Dir.
func (c *Config) Resolve(path string) string {
	if path == "" || c.Dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size"`
}

// DatabaseConfig holds database settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string `mapstructure:"path"`

	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Enable foreign keys
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// Maximum open connections
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// Maximum idle connections
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// Connection max lifetime
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DispatchConfig holds procedure dispatch settings.
type DispatchConfig struct {
	// Timeout bounds every dispatched procedure.
	Timeout time.Duration `mapstructure:"timeout"`

	// Modules are loaded in order at startup. Entries are either catalog
	// names (builtin/roles) or paths to YAML module manifests.
	Modules []string `mapstructure:"modules"`
}

// TriggersConfig holds trigger engine settings.
type TriggersConfig struct {
	// Timeout bounds every trigger body execution.
	Timeout time.Duration `mapstructure:"timeout"`

	// Retention is how long execution log entries are kept.
	Retention time.Duration `mapstructure:"retention"`

	// CleanupSchedule is a cron expression for the retention sweep.
	CleanupSchedule string `mapstructure:"cleanup_schedule"`
}

// RolesConfig points at the role permission table.
type RolesConfig struct {
	// Path to a YAML role table. Empty uses the built-in table.
	Path string `mapstructure:"path"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig holds JWT settings.
type JWTConfig struct {
	// Secret key for signing tokens (min 32 chars)
	Secret string `mapstructure:"secret"`

	// Access token lifetime
	AccessTTL time.Duration `mapstructure:"access_ttl"`

	// JWT issuer claim
	Issuer string `mapstructure:"issuer"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`

	// Include caller info
	Caller bool `mapstructure:"caller"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
