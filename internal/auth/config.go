package auth

import (
	"fmt"
	"os"
	"time"
)

// Config holds bearer token signing parameters.
type Config struct {
	Secret   string `toml:"secret"`
	Issuer   string `toml:"issuer"`
	TokenTTL string `toml:"token_ttl"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Secret   string
	Issuer   string
	TokenTTL string
}

// TokenTTLDuration returns TokenTTL as a time.Duration.
func (c *Config) TokenTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TokenTTL)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Secret != "" {
		c.Secret = overlay.Secret
	}
	if overlay.Issuer != "" {
		c.Issuer = overlay.Issuer
	}
	if overlay.TokenTTL != "" {
		c.TokenTTL = overlay.TokenTTL
	}
}

func (c *Config) loadDefaults() {
	if c.Issuer == "" {
		c.Issuer = "curator"
	}
	if c.TokenTTL == "" {
		c.TokenTTL = "12h"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Secret != "" {
		if v := os.Getenv(env.Secret); v != "" {
			c.Secret = v
		}
	}
	if env.Issuer != "" {
		if v := os.Getenv(env.Issuer); v != "" {
			c.Issuer = v
		}
	}
	if env.TokenTTL != "" {
		if v := os.Getenv(env.TokenTTL); v != "" {
			c.TokenTTL = v
		}
	}
}

func (c *Config) validate() error {
	if len(c.Secret) < 32 {
		return fmt.Errorf("secret must be at least 32 bytes")
	}
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil {
		return fmt.Errorf("invalid token_ttl: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("token_ttl must be positive")
	}
	return nil
}
