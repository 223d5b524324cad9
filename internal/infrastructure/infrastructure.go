// Package infrastructure assembles the dependencies domain systems require:
// logging, lifecycle, database, blob storage, metrics, and the loaded model.
package infrastructure

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JaimeStill/curator/internal/config"
	"github.com/JaimeStill/curator/internal/features"
	"github.com/JaimeStill/curator/internal/model"
	"github.com/JaimeStill/curator/internal/telemetry"
	"github.com/JaimeStill/curator/pkg/database"
	"github.com/JaimeStill/curator/pkg/lifecycle"
	"github.com/JaimeStill/curator/pkg/storage"
)

// Infrastructure holds the core systems shared by all domain modules.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Metrics   *telemetry.Metrics
	Models    *Models
}

// New creates an Infrastructure from the application configuration. Model
// artifacts are loaded and shape-checked here so a bad deployment fails
// before the server listens. Systems are not started; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	models, err := LoadModels(&cfg.Model, logger)
	if err != nil {
		return nil, err
	}

	db, err := database.New(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	metrics := telemetry.New()
	metrics.ModelPublished(models.Handle.Current().Version)

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		Metrics:   metrics,
		Models:    models,
	}, nil
}

// Start registers infrastructure hooks with the lifecycle coordinator and
// makes readiness depend on the database and the storage container.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("storage start failed: %w", err)
	}
	i.Lifecycle.Require(i.Database)
	i.Lifecycle.Require(i.Storage)
	return nil
}

// Models is the loaded feature extractor and the serving classifier handle.
type Models struct {
	Extractor *features.Extractor
	Handle    *model.Handle
}
