package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	testAccessSecret  = "test-access-secret-at-least-32-chars!"
	testRefreshSecret = "test-refresh-secret-at-least-32-chars"
)

// validConfig returns a config that passes Validate.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.AccessSecret = testAccessSecret
	cfg.Security.JWT.RefreshSecret = testRefreshSecret
	cfg.Security.JWT.Audience = "academia-clients"
	cfg.Security.JWT.Issuer = "academia-core"
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    access_secret: "test-access-secret-at-least-32-chars!"
    refresh_secret: "test-refresh-secret-at-least-32-chars"
    audience: "academia-clients"
    issuer: "academia-core"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Security.JWT.AccessTokenTTL != 3600 {
		t.Errorf("AccessTokenTTL = %d, want default 3600", cfg.Security.JWT.AccessTokenTTL)
	}
	if cfg.Security.JWT.RefreshTokenTTL != 86400 {
		t.Errorf("RefreshTokenTTL = %d, want default 86400", cfg.Security.JWT.RefreshTokenTTL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingSecretsIsFatal(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
security:
  jwt:
    audience: "academia-clients"
    issuer: "academia-core"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error when signing secrets are absent")
	}
	if !strings.Contains(err.Error(), "access_secret is required") {
		t.Errorf("error = %v, want mention of access_secret", err)
	}
	if !strings.Contains(err.Error(), "refresh_secret is required") {
		t.Errorf("error = %v, want mention of refresh_secret", err)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("ACADEMIA_JWT_SECRET", testAccessSecret)
	t.Setenv("ACADEMIA_JWT_REFRESH_SECRET", testRefreshSecret)
	t.Setenv("ACADEMIA_JWT_TOKEN_AUDIENCE", "aud")
	t.Setenv("ACADEMIA_JWT_TOKEN_ISSUER", "iss")
	t.Setenv("ACADEMIA_JWT_ACCESS_TOKEN_TTL", "120")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	tc := cfg.TokenConfig()
	if tc.AccessTTL != 120*time.Second {
		t.Errorf("AccessTTL = %v, want 2m", tc.AccessTTL)
	}
	if tc.RefreshTTL != 24*time.Hour {
		t.Errorf("RefreshTTL = %v, want 24h", tc.RefreshTTL)
	}
	if tc.Audience != "aud" || tc.Issuer != "iss" {
		t.Errorf("Audience/Issuer = %q/%q, want aud/iss", tc.Audience, tc.Issuer)
	}
}

func TestLoad_InvalidTTLEnv(t *testing.T) {
	t.Setenv("ACADEMIA_JWT_ACCESS_TOKEN_TTL", "an-hour")

	if _, err := Load(""); err == nil {
		t.Error("Load() expected error for non-numeric TTL")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"missing access secret", func(c *Config) { c.Security.JWT.AccessSecret = "" }, true},
		{"missing refresh secret", func(c *Config) { c.Security.JWT.RefreshSecret = "" }, true},
		{"access secret too short", func(c *Config) { c.Security.JWT.AccessSecret = "short" }, true},
		{"identical secrets", func(c *Config) { c.Security.JWT.RefreshSecret = c.Security.JWT.AccessSecret }, true},
		{"missing audience", func(c *Config) { c.Security.JWT.Audience = "" }, true},
		{"missing issuer", func(c *Config) { c.Security.JWT.Issuer = "" }, true},
		{"zero access ttl", func(c *Config) { c.Security.JWT.AccessTokenTTL = 0 }, true},
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "ftp" }, true},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = "s3" }, true},
		{"internal listener bad port", func(c *Config) {
			c.Internal.Enabled = true
			c.Internal.Port = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("ACADEMIA_DATABASE_PATH", "/custom/path.db")
	t.Setenv("ACADEMIA_API_HOST", "192.168.1.1")
	t.Setenv("ACADEMIA_API_PORT", "9000")
	t.Setenv("ACADEMIA_JWT_SECRET", "jwt-secret")
	t.Setenv("ACADEMIA_JWT_REFRESH_SECRET", "jwt-refresh-secret")
	t.Setenv("ACADEMIA_STORAGE_DRIVER", "s3")
	t.Setenv("ACADEMIA_S3_BUCKET", "syllabi")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Security.JWT.AccessSecret != "jwt-secret" {
		t.Errorf("AccessSecret = %q, want %q", cfg.Security.JWT.AccessSecret, "jwt-secret")
	}
	if cfg.Security.JWT.RefreshSecret != "jwt-refresh-secret" {
		t.Errorf("RefreshSecret = %q, want %q", cfg.Security.JWT.RefreshSecret, "jwt-refresh-secret")
	}
	if cfg.Storage.Driver != "s3" || cfg.Storage.S3.Bucket != "syllabi" {
		t.Errorf("Storage = %+v, want s3/syllabi", cfg.Storage)
	}
}

func TestLoad_S3FromEnv(t *testing.T) {
	t.Setenv("ACADEMIA_JWT_SECRET", testAccessSecret)
	t.Setenv("ACADEMIA_JWT_REFRESH_SECRET", testRefreshSecret)
	t.Setenv("ACADEMIA_JWT_TOKEN_AUDIENCE", "aud")
	t.Setenv("ACADEMIA_JWT_TOKEN_ISSUER", "iss")
	t.Setenv("ACADEMIA_STORAGE_DRIVER", "s3")
	t.Setenv("ACADEMIA_S3_BUCKET", "syllabi")
	t.Setenv("ACADEMIA_S3_REGION", "eu-west-2")
	t.Setenv("ACADEMIA_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("ACADEMIA_S3_PUBLIC_URL", "https://cdn.example.com/syllabi")
	t.Setenv("ACADEMIA_S3_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("ACADEMIA_S3_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	s3 := cfg.Storage.S3
	if s3.Region != "eu-west-2" {
		t.Errorf("Region = %q, want eu-west-2", s3.Region)
	}
	if s3.Endpoint != "http://minio:9000" {
		t.Errorf("Endpoint = %q, want http://minio:9000", s3.Endpoint)
	}
	if s3.PublicURL != "https://cdn.example.com/syllabi" {
		t.Errorf("PublicURL = %q, want https://cdn.example.com/syllabi", s3.PublicURL)
	}
	if s3.Bucket != "syllabi" || s3.AccessKeyID != "AKIDEXAMPLE" || s3.SecretAccessKey != "secret" {
		t.Errorf("S3 = %+v", s3)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.Internal.Enabled {
		t.Error("internal RPC listener must be disabled by default")
	}
	if cfg.Internal.Host != "127.0.0.1" {
		t.Errorf("Internal.Host = %q, want loopback", cfg.Internal.Host)
	}
	if cfg.Security.JWT.AccessSecret != "" || cfg.Security.JWT.RefreshSecret != "" {
		t.Error("defaultConfig must not ship signing secrets")
	}
}
