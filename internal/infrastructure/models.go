package infrastructure

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/JaimeStill/curator/internal/config"
	"github.com/JaimeStill/curator/internal/features"
	"github.com/JaimeStill/curator/internal/model"
	"github.com/JaimeStill/curator/internal/pipeline"
)

// LoadModels reads the vectorizer, backbone and classifier artifacts and
// verifies the classifier accepts the extractor's output widths. Every
// failure wraps pipeline.ErrConfiguration.
func LoadModels(cfg *config.ModelConfig, logger *slog.Logger) (*Models, error) {
	vectorizer, err := features.LoadVectorizer(cfg.VectorizerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load vectorizer: %w", pipeline.ErrConfiguration, err)
	}

	backbone, err := features.LoadBackbone(cfg.BackbonePath)
	if err != nil {
		return nil, fmt.Errorf("%w: load backbone: %w", pipeline.ErrConfiguration, err)
	}

	extractor := features.NewExtractor(vectorizer, backbone)

	classifier, err := loadClassifier(cfg, extractor, logger)
	if err != nil {
		return nil, err
	}

	if err := classifier.CheckShapes(extractor.TextDim(), extractor.ImageDim()); err != nil {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrConfiguration, err)
	}

	logger.Info(
		"model loaded",
		"text_dim", extractor.TextDim(),
		"image_dim", extractor.ImageDim(),
		"classes", classifier.Classes(),
	)

	return &Models{
		Extractor: extractor,
		Handle:    model.NewHandle(classifier),
	}, nil
}

func loadClassifier(cfg *config.ModelConfig, extractor *features.Extractor, logger *slog.Logger) (*model.Classifier, error) {
	classifier, err := model.Load(cfg.ClassifierPath)
	if err == nil {
		return classifier, nil
	}
	if !errors.Is(err, fs.ErrNotExist) || cfg.BootstrapClasses == 0 {
		return nil, fmt.Errorf("%w: load classifier: %w", pipeline.ErrConfiguration, err)
	}

	logger.Warn(
		"classifier artifact missing, starting untrained",
		"path", cfg.ClassifierPath,
		"classes", cfg.BootstrapClasses,
	)

	classifier, err = model.New(
		extractor.TextDim(),
		extractor.ImageDim(),
		cfg.Hidden,
		cfg.BootstrapClasses,
		cfg.Seed,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: bootstrap classifier: %w", pipeline.ErrConfiguration, err)
	}
	return classifier, nil
}
