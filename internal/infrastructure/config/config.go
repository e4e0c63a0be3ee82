package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/academia-core/internal/auth"
)

// Config is the root configuration structure for academia-core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Internal  InternalConfig  `yaml:"internal"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Storage   StorageConfig   `yaml:"storage"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// InternalConfig contains settings for the trusted internal RPC listener.
//
// Requests on this listener skip authentication entirely. It must only ever
// be reachable from trusted callers, so it binds to loopback by default and
// is disabled unless explicitly enabled.
type InternalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	Password  PasswordConfig  `yaml:"password"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings. TTLs are in seconds.
type JWTConfig struct {
	AccessSecret    string `yaml:"access_secret"`
	RefreshSecret   string `yaml:"refresh_secret"`
	Audience        string `yaml:"audience"`
	Issuer          string `yaml:"issuer"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

// PasswordConfig contains credential hashing settings.
type PasswordConfig struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

// RateLimitConfig contains rate limiting settings for the public auth endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// StorageConfig selects where uploaded syllabus documents are kept.
type StorageConfig struct {
	Driver string          `yaml:"driver"` // "disk" or "s3"
	Disk   DiskStoreConfig `yaml:"disk"`
	S3     S3StoreConfig   `yaml:"s3"`
}

// DiskStoreConfig contains local upload directory settings.
type DiskStoreConfig struct {
	Dir string `yaml:"dir"`
}

// S3StoreConfig contains S3-compatible bucket settings.
type S3StoreConfig struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PublicURL       string `yaml:"public_url"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// Minimum length for each JWT signing secret.
const minJWTSecretLength = 32

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. A .env file in the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: ACADEMIA_SECTION_KEY
// For example: ACADEMIA_DATABASE_PATH, ACADEMIA_JWT_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/academia.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Internal: InternalConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    3001,
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  3600,
				RefreshTokenTTL: 86400,
			},
			Password: PasswordConfig{
				BcryptCost: 10,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
			},
		},
		Storage: StorageConfig{
			Driver: "disk",
			Disk: DiskStoreConfig{
				Dir: "./public/uploads",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	// Database
	if v := os.Getenv("ACADEMIA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("ACADEMIA_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if err := envInt("ACADEMIA_API_PORT", &cfg.API.Port); err != nil {
		return err
	}

	// Security - JWT (secrets must come from the environment in production)
	if v := os.Getenv("ACADEMIA_JWT_SECRET"); v != "" {
		cfg.Security.JWT.AccessSecret = v
	}
	if v := os.Getenv("ACADEMIA_JWT_REFRESH_SECRET"); v != "" {
		cfg.Security.JWT.RefreshSecret = v
	}
	if v := os.Getenv("ACADEMIA_JWT_TOKEN_AUDIENCE"); v != "" {
		cfg.Security.JWT.Audience = v
	}
	if v := os.Getenv("ACADEMIA_JWT_TOKEN_ISSUER"); v != "" {
		cfg.Security.JWT.Issuer = v
	}
	if err := envInt("ACADEMIA_JWT_ACCESS_TOKEN_TTL", &cfg.Security.JWT.AccessTokenTTL); err != nil {
		return err
	}
	if err := envInt("ACADEMIA_JWT_REFRESH_TOKEN_TTL", &cfg.Security.JWT.RefreshTokenTTL); err != nil {
		return err
	}

	// Storage
	if v := os.Getenv("ACADEMIA_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("ACADEMIA_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("ACADEMIA_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("ACADEMIA_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("ACADEMIA_S3_PUBLIC_URL"); v != "" {
		cfg.Storage.S3.PublicURL = v
	}
	if v := os.Getenv("ACADEMIA_S3_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.S3.AccessKeyID = v
	}
	if v := os.Getenv("ACADEMIA_S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.S3.SecretAccessKey = v
	}

	return nil
}

// envInt overwrites *dst with the integer value of the named variable, if set.
func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = n
	return nil
}

// Validate checks the configuration for errors and security issues.
//
// Missing signing secrets are a startup-fatal misconfiguration: tokens signed
// with an empty key could be forged by anyone.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Internal.Enabled && (c.Internal.Port < 1 || c.Internal.Port > 65535) {
		errs = append(errs, "internal.port must be between 1 and 65535")
	}

	jwtCfg := c.Security.JWT
	switch {
	case jwtCfg.AccessSecret == "":
		errs = append(errs, "security.jwt.access_secret is required (set ACADEMIA_JWT_SECRET environment variable)")
	case len(jwtCfg.AccessSecret) < minJWTSecretLength:
		errs = append(errs, "security.jwt.access_secret must be at least 32 characters")
	}
	switch {
	case jwtCfg.RefreshSecret == "":
		errs = append(errs, "security.jwt.refresh_secret is required (set ACADEMIA_JWT_REFRESH_SECRET environment variable)")
	case len(jwtCfg.RefreshSecret) < minJWTSecretLength:
		errs = append(errs, "security.jwt.refresh_secret must be at least 32 characters")
	}
	if jwtCfg.AccessSecret != "" && jwtCfg.AccessSecret == jwtCfg.RefreshSecret {
		errs = append(errs, "security.jwt.access_secret and refresh_secret must differ")
	}
	if jwtCfg.Audience == "" {
		errs = append(errs, "security.jwt.audience is required (set ACADEMIA_JWT_TOKEN_AUDIENCE environment variable)")
	}
	if jwtCfg.Issuer == "" {
		errs = append(errs, "security.jwt.issuer is required (set ACADEMIA_JWT_TOKEN_ISSUER environment variable)")
	}
	if jwtCfg.AccessTokenTTL <= 0 || jwtCfg.RefreshTokenTTL <= 0 {
		errs = append(errs, "security.jwt token TTLs must be positive")
	}

	switch c.Storage.Driver {
	case "disk":
		if c.Storage.Disk.Dir == "" {
			errs = append(errs, "storage.disk.dir is required for the disk driver")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" || c.Storage.S3.Region == "" {
			errs = append(errs, "storage.s3.bucket and storage.s3.region are required for the s3 driver")
		}
	default:
		errs = append(errs, "storage.driver must be disk or s3")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TokenConfig builds the immutable signing configuration handed to the token service.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		AccessSecret:  c.Security.JWT.AccessSecret,
		RefreshSecret: c.Security.JWT.RefreshSecret,
		Audience:      c.Security.JWT.Audience,
		Issuer:        c.Security.JWT.Issuer,
		AccessTTL:     time.Duration(c.Security.JWT.AccessTokenTTL) * time.Second,
		RefreshTTL:    time.Duration(c.Security.JWT.RefreshTokenTTL) * time.Second,
	}
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
