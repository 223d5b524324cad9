package api

import (
	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/internal/config"
	"github.com/JaimeStill/curator/internal/infrastructure"
	"github.com/JaimeStill/curator/pkg/pagination"
)

// Runtime extends Infrastructure with API-specific configuration.
type Runtime struct {
	*infrastructure.Infrastructure
	Pagination    pagination.Config
	MaxUploadSize int64
	Guards        auth.Guards
}

// NewRuntime creates an API runtime with a module-scoped logger and the
// bearer token guards built from the auth config.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	logger := infra.Logger.With("module", "api")
	tokens := auth.NewTokens(&cfg.Auth)

	return &Runtime{
		Infrastructure: &infrastructure.Infrastructure{
			Lifecycle: infra.Lifecycle,
			Logger:    logger,
			Database:  infra.Database,
			Storage:   infra.Storage,
			Metrics:   infra.Metrics,
			Models:    infra.Models,
		},
		Pagination:    cfg.API.Pagination,
		MaxUploadSize: cfg.API.MaxUploadSizeBytes(),
		Guards:        auth.NewGuards(tokens, logger),
	}
}
