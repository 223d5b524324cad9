package api

import (
	"github.com/JaimeStill/curator/internal/config"
	"github.com/JaimeStill/curator/internal/features"
	"github.com/JaimeStill/curator/internal/pipeline"
	"github.com/JaimeStill/curator/internal/products"
)

// Domain holds all domain systems that comprise the API.
type Domain struct {
	Products products.System
	Pipeline pipeline.System
}

// NewDomain creates all domain systems from the API runtime. The product
// ledger bounds categories by the serving model's output width.
func NewDomain(runtime *Runtime, cfg *config.ModelConfig) *Domain {
	handle := runtime.Models.Handle

	productsSystem := products.New(
		runtime.Database.Connection(),
		runtime.Storage,
		runtime.Logger,
		runtime.Pagination,
		handle.Current().Model.Classes(),
	)

	pipelineSystem := pipeline.New(
		productsSystem,
		features.NewBlobLoader(runtime.Storage),
		runtime.Models.Extractor,
		handle,
		runtime.Metrics,
		pipeline.Config{
			Fit:          cfg.FitOptions(),
			Workers:      cfg.Workers,
			ArtifactPath: cfg.ClassifierPath,
		},
		runtime.Logger,
	)

	return &Domain{
		Products: productsSystem,
		Pipeline: pipelineSystem,
	}
}
