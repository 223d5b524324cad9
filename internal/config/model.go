package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/JaimeStill/curator/internal/model"
)

const (
	EnvModelVectorizerPath  = "CURATOR_MODEL_VECTORIZER_PATH"
	EnvModelBackbonePath    = "CURATOR_MODEL_BACKBONE_PATH"
	EnvModelClassifierPath  = "CURATOR_MODEL_CLASSIFIER_PATH"
	EnvModelBootstrapClass  = "CURATOR_MODEL_BOOTSTRAP_CLASSES"
	EnvModelHidden          = "CURATOR_MODEL_HIDDEN"
	EnvModelEpochs          = "CURATOR_MODEL_EPOCHS"
	EnvModelBatchSize       = "CURATOR_MODEL_BATCH_SIZE"
	EnvModelValidationSplit = "CURATOR_MODEL_VALIDATION_SPLIT"
	EnvModelLearningRate    = "CURATOR_MODEL_LEARNING_RATE"
	EnvModelMomentum        = "CURATOR_MODEL_MOMENTUM"
	EnvModelSeed            = "CURATOR_MODEL_SEED"
	EnvModelWorkers         = "CURATOR_MODEL_WORKERS"
)

// ModelConfig locates the model artifacts and tunes retraining.
//
// BootstrapClasses, when positive, lets the service start from a freshly
// initialized classifier of that width if no classifier artifact exists yet.
// Otherwise a missing classifier is a configuration error.
type ModelConfig struct {
	VectorizerPath   string  `toml:"vectorizer_path"`
	BackbonePath     string  `toml:"backbone_path"`
	ClassifierPath   string  `toml:"classifier_path"`
	BootstrapClasses int     `toml:"bootstrap_classes"`
	Hidden           int     `toml:"hidden"`
	Epochs           int     `toml:"epochs"`
	BatchSize        int     `toml:"batch_size"`
	ValidationSplit  float64 `toml:"validation_split"`
	LearningRate     float64 `toml:"learning_rate"`
	Momentum         float64 `toml:"momentum"`
	Seed             uint64  `toml:"seed"`
	Workers          int     `toml:"workers"`
}

// FitOptions returns the training options the config describes.
func (c *ModelConfig) FitOptions() model.FitOptions {
	return model.FitOptions{
		Epochs:          c.Epochs,
		BatchSize:       c.BatchSize,
		ValidationSplit: c.ValidationSplit,
		LearningRate:    c.LearningRate,
		Momentum:        c.Momentum,
		Seed:            c.Seed,
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ModelConfig) Finalize() error {
	c.loadDefaults()
	if err := c.loadEnv(); err != nil {
		return err
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ModelConfig) Merge(overlay *ModelConfig) {
	mergeString(&c.VectorizerPath, overlay.VectorizerPath)
	mergeString(&c.BackbonePath, overlay.BackbonePath)
	mergeString(&c.ClassifierPath, overlay.ClassifierPath)
	if overlay.BootstrapClasses != 0 {
		c.BootstrapClasses = overlay.BootstrapClasses
	}
	if overlay.Hidden != 0 {
		c.Hidden = overlay.Hidden
	}
	if overlay.Epochs != 0 {
		c.Epochs = overlay.Epochs
	}
	if overlay.BatchSize != 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.ValidationSplit != 0 {
		c.ValidationSplit = overlay.ValidationSplit
	}
	if overlay.LearningRate != 0 {
		c.LearningRate = overlay.LearningRate
	}
	if overlay.Momentum != 0 {
		c.Momentum = overlay.Momentum
	}
	if overlay.Seed != 0 {
		c.Seed = overlay.Seed
	}
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
}

func (c *ModelConfig) loadDefaults() {
	defaults := model.DefaultFitOptions()

	c.VectorizerPath = or(c.VectorizerPath, "artifacts/vectorizer.json")
	c.BackbonePath = or(c.BackbonePath, "artifacts/backbone.json")
	c.ClassifierPath = or(c.ClassifierPath, "artifacts/classifier.json")
	if c.Hidden == 0 {
		c.Hidden = 64
	}
	if c.Epochs == 0 {
		c.Epochs = defaults.Epochs
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.ValidationSplit == 0 {
		c.ValidationSplit = defaults.ValidationSplit
	}
	if c.LearningRate == 0 {
		c.LearningRate = defaults.LearningRate
	}
	if c.Momentum == 0 {
		c.Momentum = defaults.Momentum
	}
	if c.Seed == 0 {
		c.Seed = defaults.Seed
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
}

func (c *ModelConfig) loadEnv() error {
	mergeString(&c.VectorizerPath, os.Getenv(EnvModelVectorizerPath))
	mergeString(&c.BackbonePath, os.Getenv(EnvModelBackbonePath))
	mergeString(&c.ClassifierPath, os.Getenv(EnvModelClassifierPath))

	ints := []struct {
		env string
		dst *int
	}{
		{EnvModelBootstrapClass, &c.BootstrapClasses},
		{EnvModelHidden, &c.Hidden},
		{EnvModelEpochs, &c.Epochs},
		{EnvModelBatchSize, &c.BatchSize},
		{EnvModelWorkers, &c.Workers},
	}
	for _, f := range ints {
		if v := os.Getenv(f.env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", f.env, err)
			}
			*f.dst = n
		}
	}

	floats := []struct {
		env string
		dst *float64
	}{
		{EnvModelValidationSplit, &c.ValidationSplit},
		{EnvModelLearningRate, &c.LearningRate},
		{EnvModelMomentum, &c.Momentum},
	}
	for _, f := range floats {
		if v := os.Getenv(f.env); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", f.env, err)
			}
			*f.dst = n
		}
	}

	if v := os.Getenv(EnvModelSeed); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvModelSeed, err)
		}
		c.Seed = n
	}
	return nil
}

func (c *ModelConfig) validate() error {
	switch {
	case c.VectorizerPath == "" || c.BackbonePath == "" || c.ClassifierPath == "":
		return fmt.Errorf("vectorizer_path, backbone_path and classifier_path required")
	case c.BootstrapClasses < 0 || c.BootstrapClasses == 1:
		return fmt.Errorf("bootstrap_classes must be 0 or at least 2, got %d", c.BootstrapClasses)
	case c.Hidden < 1:
		return fmt.Errorf("hidden must be positive")
	case c.Epochs < 1 || c.BatchSize < 1:
		return fmt.Errorf("epochs and batch_size must be positive")
	case c.ValidationSplit < 0 || c.ValidationSplit >= 1:
		return fmt.Errorf("validation_split must be in [0, 1)")
	case c.LearningRate <= 0:
		return fmt.Errorf("learning_rate must be positive")
	case c.Momentum < 0 || c.Momentum >= 1:
		return fmt.Errorf("momentum must be in [0, 1)")
	case c.Workers < 1:
		return fmt.Errorf("workers must be positive")
	}
	return nil
}
