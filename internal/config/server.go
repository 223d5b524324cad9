package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvServerHost              = "CURATOR_SERVER_HOST"
	EnvServerPort              = "CURATOR_SERVER_PORT"
	EnvServerReadTimeout       = "CURATOR_SERVER_READ_TIMEOUT"
	EnvServerReadHeaderTimeout = "CURATOR_SERVER_READ_HEADER_TIMEOUT"
	EnvServerWriteTimeout      = "CURATOR_SERVER_WRITE_TIMEOUT"
	EnvServerShutdownTimeout   = "CURATOR_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfig holds HTTP server parameters. WriteTimeout bounds the longest
// response, which is a synchronous retrain.
type ServerConfig struct {
	Host              string `toml:"host"`
	Port              int    `toml:"port"`
	ReadTimeout       string `toml:"read_timeout"`
	ReadHeaderTimeout string `toml:"read_header_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ServerConfig) ReadTimeoutDuration() time.Duration       { return duration(c.ReadTimeout) }
func (c *ServerConfig) ReadHeaderTimeoutDuration() time.Duration { return duration(c.ReadHeaderTimeout) }
func (c *ServerConfig) WriteTimeoutDuration() time.Duration      { return duration(c.WriteTimeout) }
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration   { return duration(c.ShutdownTimeout) }

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Host != "" {
		c.Host = overlay.Host
	}
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	mergeString(&c.ReadTimeout, overlay.ReadTimeout)
	mergeString(&c.ReadHeaderTimeout, overlay.ReadHeaderTimeout)
	mergeString(&c.WriteTimeout, overlay.WriteTimeout)
	mergeString(&c.ShutdownTimeout, overlay.ShutdownTimeout)
}

func (c *ServerConfig) loadDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	c.ReadTimeout = or(c.ReadTimeout, "1m")
	c.ReadHeaderTimeout = or(c.ReadHeaderTimeout, "10s")
	c.WriteTimeout = or(c.WriteTimeout, "30m")
	c.ShutdownTimeout = or(c.ShutdownTimeout, "30s")
}

func (c *ServerConfig) loadEnv() {
	mergeString(&c.Host, os.Getenv(EnvServerHost))
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	mergeString(&c.ReadTimeout, os.Getenv(EnvServerReadTimeout))
	mergeString(&c.ReadHeaderTimeout, os.Getenv(EnvServerReadHeaderTimeout))
	mergeString(&c.WriteTimeout, os.Getenv(EnvServerWriteTimeout))
	mergeString(&c.ShutdownTimeout, os.Getenv(EnvServerShutdownTimeout))
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for name, v := range map[string]string{
		"read_timeout":        c.ReadTimeout,
		"read_header_timeout": c.ReadHeaderTimeout,
		"write_timeout":       c.WriteTimeout,
		"shutdown_timeout":    c.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
