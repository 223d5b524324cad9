// Package pipeline runs classification, retraining and evaluation against the
// product ledger and the serving model handle.
package pipeline

import (
	"context"
	"image"
	"time"

	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/internal/model"
	"github.com/JaimeStill/curator/internal/products"
	"github.com/JaimeStill/curator/internal/scoring"
)

// System defines the public contract for the classification pipeline.
type System interface {
	Handler(maxUploadSize int64, guards auth.Guards) *Handler

	// Classify predicts the category of a single product. Any failure wraps
	// ErrInference alongside its underlying cause.
	Classify(ctx context.Context, designation, description string, img image.Image) (*Prediction, error)

	// Retrain fits a new model on every untrained product and marks exactly
	// those products trained. Returns ErrEmptyDataset when there is nothing
	// to train. The caller must serialize calls.
	Retrain(ctx context.Context) (*TrainingReport, error)

	// Evaluate scores the serving model on the untrained pool without
	// fitting or changing any state.
	Evaluate(ctx context.Context) (*EvaluationReport, error)

	Status(ctx context.Context) (*Status, error)
}

// Ledger is the subset of the product store the pipeline reads and claims.
type Ledger interface {
	Untrained(ctx context.Context) ([]products.Product, error)
	Claim(ctx context.Context, fn func(batch []products.Product) error) error
	Counts(ctx context.Context) (products.Counts, error)
}

// Recorder receives pipeline outcomes for metrics.
type Recorder interface {
	Classified(outcome string, elapsed time.Duration)
	RunCompleted(kind, outcome string, elapsed time.Duration)
	RunScored(kind string, records int, f1 float64)
	ModelPublished(version int64)
}

// Run kinds and outcomes reported to a Recorder.
const (
	KindRetrain  = "retrain"
	KindEvaluate = "evaluate"

	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// Config tunes training and dataset construction.
type Config struct {
	Fit model.FitOptions
	// Workers bounds concurrent image loads while building a batch.
	Workers int
	// ArtifactPath is where a newly trained model is persisted.
	// Empty disables persistence.
	ArtifactPath string
}

// Prediction is the result of classifying one product.
type Prediction struct {
	PredictedClass int     `json:"predicted_class"`
	Confidence     float64 `json:"confidence"`
	ModelVersion   int64   `json:"model_version"`
}

// TrainingReport is the outcome of a successful retrain.
type TrainingReport struct {
	scoring.Report
	Records      int           `json:"records"`
	ModelVersion int64         `json:"model_version"`
	Duration     time.Duration `json:"duration_ns"`
	History      model.History `json:"history"`
}

// EvaluationReport is the serving model's score on the untrained pool.
type EvaluationReport struct {
	scoring.Report
	Records      int   `json:"records"`
	ModelVersion int64 `json:"model_version"`
}

// Status describes the serving model and the ledger.
type Status struct {
	ModelVersion int64           `json:"model_version"`
	PublishedAt  time.Time       `json:"published_at"`
	Classes      int             `json:"classes"`
	Products     products.Counts `json:"products"`
}

type nopRecorder struct{}

func (nopRecorder) Classified(string, time.Duration)           {}
func (nopRecorder) RunCompleted(string, string, time.Duration) {}
func (nopRecorder) RunScored(string, int, float64)             {}
func (nopRecorder) ModelPublished(int64)                       {}
