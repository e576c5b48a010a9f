package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}

	if cfg.Database.Path != DefaultDBPath {
		t.Errorf("expected db path %s, got %s", DefaultDBPath, cfg.Database.Path)
	}

	if cfg.Dispatch.Timeout != DefaultProcedureTimeout {
		t.Errorf("expected dispatch timeout %v, got %v", DefaultProcedureTimeout, cfg.Dispatch.Timeout)
	}

	if len(cfg.Dispatch.Modules) != len(DefaultModules) {
		t.Errorf("expected %d default modules, got %d", len(DefaultModules), len(cfg.Dispatch.Modules))
	}

	if cfg.Triggers.Timeout != DefaultTriggerTimeout {
		t.Errorf("expected trigger timeout %v, got %v", DefaultTriggerTimeout, cfg.Triggers.Timeout)
	}
}

func TestDefault_ModulesAreCopied(t *testing.T) {
	cfg := Default()
	cfg.Dispatch.Modules[0] = "changed"

	if DefaultModules[0] == "changed" {
		t.Error("expected Default to copy the module list")
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid port")
	}

	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("expected error to match ErrInvalidConfig")
	}

	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	found := false
	for _, e := range errs {
		if e.Field == "server.port" {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected error for server.port field")
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Logging.Level = "invalid" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"dispatch timeout", func(c *Config) { c.Dispatch.Timeout = 0 }, "dispatch.timeout"},
		{"duplicate module", func(c *Config) { c.Dispatch.Modules = []string{"a", "a"} }, "dispatch.modules"},
		{"empty module", func(c *Config) { c.Dispatch.Modules = []string{" "} }, "dispatch.modules"},
		{"trigger timeout", func(c *Config) { c.Triggers.Timeout = -time.Second }, "triggers.timeout"},
		{"retention", func(c *Config) { c.Triggers.Retention = time.Minute }, "triggers.retention"},
		{"cleanup schedule", func(c *Config) { c.Triggers.CleanupSchedule = "not a cron" }, "triggers.cleanup_schedule"},
		{"short secret", func(c *Config) { c.Auth.JWT.Secret = "short" }, "auth.jwt.secret"},
		{"database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected validation error for %s", tt.field)
			}

			errs := err.(ValidationErrors)
			for _, e := range errs {
				if e.Field == tt.field {
					return
				}
			}
			t.Errorf("expected error for field %s, got %v", tt.field, errs)
		})
	}
}

func TestValidateJWTSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"empty", "", true},
		{"too short", "short", true},
		{"valid", "this-is-a-very-long-secret-key-for-jwt-signing", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJWTSecret(tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateJWTSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tenantcore.yaml")

	content := `
server:
  port: 9000
  host: "0.0.0.0"
database:
  path: "test.db"
dispatch:
  timeout: 10s
  modules:
    - builtin/roles
    - modules/billing.yaml
triggers:
  timeout: 2s
  cleanup_schedule: "0 3 * * *"
logging:
  level: "debug"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}

	if cfg.Database.Path != "test.db" {
		t.Errorf("expected db path test.db, got %s", cfg.Database.Path)
	}

	if cfg.Dispatch.Timeout != 10*time.Second {
		t.Errorf("expected dispatch timeout 10s, got %v", cfg.Dispatch.Timeout)
	}

	if len(cfg.Dispatch.Modules) != 2 || cfg.Dispatch.Modules[1] != "modules/billing.yaml" {
		t.Errorf("unexpected modules %v", cfg.Dispatch.Modules)
	}

	if cfg.Triggers.Timeout != 2*time.Second {
		t.Errorf("expected trigger timeout 2s, got %v", cfg.Triggers.Timeout)
	}

	if cfg.Triggers.Retention != DefaultRetention {
		t.Errorf("expected default retention, got %v", cfg.Triggers.Retention)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TENANTCORE_SERVER_PORT", "7777")
	t.Setenv("TENANTCORE_DATABASE_PATH", "env-test.db")

	cfg, err := LoadWithDefaults()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777 from env, got %d", cfg.Server.Port)
	}

	if cfg.Database.Path != "env-test.db" {
		t.Errorf("expected db path env-test.db from env, got %s", cfg.Database.Path)
	}
}

func TestLoad_ExpandsEnvReferences(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tenantcore.yaml")
	t.Setenv("TEST_JWT_SECRET", "an-environment-provided-secret-of-enough-length")

	content := `
auth:
  jwt:
    secret: "${TEST_JWT_SECRET}"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Auth.JWT.Secret != "an-environment-provided-secret-of-enough-length" {
		t.Errorf("expected expanded secret, got %q", cfg.Auth.JWT.Secret)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TC_HOST", "db.internal")
	t.Setenv("TC_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"${TC_HOST}", "db.internal"},
		{"sqlite://${TC_HOST}/core", "sqlite://db.internal/core"},
		{"${TC_MISSING:-fallback}", "fallback"},
		{"${TC_EMPTY:-fallback}", "fallback"},
		{"${TC_MISSING}", ""},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		if got := expandEnv(tt.in); got != tt.want {
			t.Errorf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_ResolvesAgainstConfigDir(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "tenantcore.yaml")
	content := `
roles:
  path: roles.yaml
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Dir != tmpDir {
		t.Errorf("expected Dir %q, got %q", tmpDir, cfg.Dir)
	}
	if got := cfg.Resolve(cfg.Roles.Path); got != filepath.Join(tmpDir, "roles.yaml") {
		t.Errorf("unexpected resolved path %q", got)
	}
	if got := cfg.Resolve("/abs/roles.yaml"); got != "/abs/roles.yaml" {
		t.Errorf("absolute paths should pass through, got %q", got)
	}

	defaults := Default()
	if got := defaults.Resolve("roles.yaml"); got != "roles.yaml" {
		t.Errorf("without a config file paths should pass through, got %q", got)
	}
}

func TestServerAddress(t *testing.T) {
	cfg := &ServerConfig{Host: "localhost", Port: 8090}
	if addr := cfg.Address(); addr != "localhost:8090" {
		t.Errorf("expected localhost:8090, got %s", addr)
	}
}
