// Package config loads the service configuration from config.toml, an
// optional config.<env>.toml overlay, and CURATOR_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/pkg/database"
	"github.com/JaimeStill/curator/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvCuratorEnv             = "CURATOR_ENV"
	EnvCuratorShutdownTimeout = "CURATOR_SHUTDOWN_TIMEOUT"
	EnvCuratorVersion         = "CURATOR_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "CURATOR_DB_HOST",
	Port:            "CURATOR_DB_PORT",
	Name:            "CURATOR_DB_NAME",
	User:            "CURATOR_DB_USER",
	Password:        "CURATOR_DB_PASSWORD",
	SSLMode:         "CURATOR_DB_SSL_MODE",
	MaxOpenConns:    "CURATOR_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "CURATOR_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "CURATOR_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "CURATOR_DB_CONN_TIMEOUT",
	RetryInterval:   "CURATOR_DB_RETRY_INTERVAL",
	MaxAttempts:     "CURATOR_DB_MAX_ATTEMPTS",
}

var storageEnv = &storage.Env{
	ContainerName:    "CURATOR_STORAGE_CONTAINER_NAME",
	ConnectionString: "CURATOR_STORAGE_CONNECTION_STRING",
	ServiceURL:       "CURATOR_STORAGE_SERVICE_URL",
}

// AuthEnv names the auth overrides; cmd/token reads the same variables.
var AuthEnv = &auth.Env{
	Secret:   "CURATOR_AUTH_SECRET",
	Issuer:   "CURATOR_AUTH_ISSUER",
	TokenTTL: "CURATOR_AUTH_TOKEN_TTL",
}

// Config is the root configuration for the Curator service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	API             APIConfig       `toml:"api"`
	Auth            auth.Config     `toml:"auth"`
	Model           ModelConfig     `toml:"model"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the CURATOR_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvCuratorEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. Without a config.toml, defaults and environment
// variables provide everything.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom is Load with config files resolved relative to dir.
func LoadFrom(dir string) (*Config, error) {
	cfg := &Config{}

	base := dir + "/" + BaseConfigFile
	if _, err := os.Stat(base); err == nil {
		loaded, err := load(base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(dir); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Auth.Merge(&overlay.Auth)
	c.Model.Merge(&overlay.Model)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Auth.Finalize(AuthEnv); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Model.Finalize(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvCuratorShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvCuratorVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath(dir string) string {
	if env := os.Getenv(EnvCuratorEnv); env != "" {
		path := dir + "/" + fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
