package infrastructure_test

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/JaimeStill/curator/internal/config"
	"github.com/JaimeStill/curator/internal/infrastructure"
	"github.com/JaimeStill/curator/internal/model"
	"github.com/JaimeStill/curator/internal/pipeline"
)

const vectorizerJSON = `{"vocabulary": {"mug": 0, "lamp": 1, "desk": 2}, "idf": [1.2, 1.5, 2.0]}`

const backboneJSON = `{
  "input_size": 8,
  "mean": [0.5, 0.5, 0.5],
  "std": [0.25, 0.25, 0.25],
  "layers": [
    {"filters": 2, "kernel": 1, "stride": 1, "weights": [1, 0, 0, 0, 1, 0], "bias": [0, 0]}
  ]
}`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func artifacts(t *testing.T) config.ModelConfig {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	cfg := config.ModelConfig{
		VectorizerPath: write("vectorizer.json", vectorizerJSON),
		BackbonePath:   write("backbone.json", backboneJSON),
		ClassifierPath: filepath.Join(dir, "classifier.json"),
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return cfg
}

func TestLoadModelsBootstrap(t *testing.T) {
	cfg := artifacts(t)
	cfg.BootstrapClasses = 4

	models, err := infrastructure.LoadModels(&cfg, discard())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	snap := models.Handle.Current()
	if snap.Version != 1 || snap.Model.Classes() != 4 {
		t.Errorf("snapshot = v%d with %d classes, want v1 with 4", snap.Version, snap.Model.Classes())
	}
	if models.Extractor.TextDim() != 3 || models.Extractor.ImageDim() != 2 {
		t.Errorf("extractor dims = %d/%d, want 3/2", models.Extractor.TextDim(), models.Extractor.ImageDim())
	}
}

func TestLoadModelsFromArtifact(t *testing.T) {
	cfg := artifacts(t)
	m, err := model.New(3, 2, 8, 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Save(cfg.ClassifierPath); err != nil {
		t.Fatal(err)
	}

	models, err := infrastructure.LoadModels(&cfg, discard())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := models.Handle.Current().Model.Classes(); got != 5 {
		t.Errorf("classes = %d, want 5 from the artifact", got)
	}
}

func TestLoadModelsConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, cfg *config.ModelConfig)
	}{
		{"missing classifier without bootstrap", func(*testing.T, *config.ModelConfig) {}},
		{"missing vectorizer", func(_ *testing.T, cfg *config.ModelConfig) {
			cfg.VectorizerPath += ".missing"
			cfg.BootstrapClasses = 3
		}},
		{"corrupt backbone", func(t *testing.T, cfg *config.ModelConfig) {
			if err := os.WriteFile(cfg.BackbonePath, []byte(`{"input_size": 8}`), 0644); err != nil {
				t.Fatal(err)
			}
			cfg.BootstrapClasses = 3
		}},
		{"shape mismatch", func(t *testing.T, cfg *config.ModelConfig) {
			m, err := model.New(4, 2, 8, 3, 1)
			if err != nil {
				t.Fatal(err)
			}
			if err := m.Save(cfg.ClassifierPath); err != nil {
				t.Fatal(err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := artifacts(t)
			tt.setup(t, &cfg)

			_, err := infrastructure.LoadModels(&cfg, discard())
			if !errors.Is(err, pipeline.ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}
