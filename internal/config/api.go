package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/JaimeStill/curator/pkg/formatting"
	"github.com/JaimeStill/curator/pkg/middleware"
	"github.com/JaimeStill/curator/pkg/pagination"
)

const (
	EnvAPIBasePath      = "CURATOR_API_BASE_PATH"
	EnvAPIMaxUploadSize = "CURATOR_API_MAX_UPLOAD_SIZE"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "CURATOR_CORS_ENABLED",
	Origins:          "CURATOR_CORS_ORIGINS",
	AllowedMethods:   "CURATOR_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "CURATOR_CORS_ALLOWED_HEADERS",
	AllowCredentials: "CURATOR_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "CURATOR_CORS_MAX_AGE",
}

var paginationEnv = &pagination.Env{
	DefaultPageSize: "CURATOR_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "CURATOR_PAGINATION_MAX_PAGE_SIZE",
}

// APIConfig holds API routing, upload, CORS, and pagination settings.
type APIConfig struct {
	BasePath      string                `toml:"base_path"`
	MaxUploadSize string                `toml:"max_upload_size"`
	CORS          middleware.CORSConfig `toml:"cors"`
	Pagination    pagination.Config     `toml:"pagination"`
}

// MaxUploadSizeBytes returns MaxUploadSize in bytes. Finalize guarantees it parses.
func (c *APIConfig) MaxUploadSizeBytes() int64 {
	size, _ := formatting.ParseBytes(c.MaxUploadSize)
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS and pagination configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}

	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "10MB"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv(EnvAPIBasePath); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv(EnvAPIMaxUploadSize); v != "" {
		c.MaxUploadSize = v
	}
}

func (c *APIConfig) validate() error {
	if !strings.HasPrefix(c.BasePath, "/") || strings.Count(c.BasePath, "/") != 1 {
		return fmt.Errorf("base_path must be a single-level path: %q", c.BasePath)
	}
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("max_upload_size must be positive")
	}
	return nil
}
