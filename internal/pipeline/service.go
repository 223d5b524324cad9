package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/curator/internal/auth"
	"github.com/JaimeStill/curator/internal/features"
	"github.com/JaimeStill/curator/internal/model"
	"github.com/JaimeStill/curator/internal/products"
	"github.com/JaimeStill/curator/internal/scoring"
)

// Extractor turns product text and an image into model input.
type Extractor interface {
	Extract(text string, img image.Image) (features.Vector, error)
}

type service struct {
	ledger    Ledger
	images    features.ImageLoader
	extractor Extractor
	handle    *model.Handle
	recorder  Recorder
	cfg       Config
	logger    *slog.Logger
}

// New creates the pipeline. A nil recorder discards metrics.
func New(
	ledger Ledger,
	images features.ImageLoader,
	extractor Extractor,
	handle *model.Handle,
	recorder Recorder,
	cfg Config,
	logger *slog.Logger,
) System {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &service{
		ledger:    ledger,
		images:    images,
		extractor: extractor,
		handle:    handle,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger.With("system", "pipeline"),
	}
}

func (s *service) Handler(maxUploadSize int64, guards auth.Guards) *Handler {
	return NewHandler(s, s.logger, maxUploadSize, guards)
}

func (s *service) Classify(ctx context.Context, designation, description string, img image.Image) (*Prediction, error) {
	start := time.Now()
	snap := s.handle.Current()

	pred, err := s.classify(snap, designation+" "+description, img)
	if err != nil {
		s.recorder.Classified(OutcomeError, time.Since(start))
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	s.recorder.Classified(OutcomeSuccess, time.Since(start))
	return pred, nil
}

func (s *service) classify(snap *model.Snapshot, text string, img image.Image) (*Prediction, error) {
	v, err := s.extract(text, img)
	if err != nil {
		return nil, err
	}

	probs, err := snap.Model.Predict(v)
	if err != nil {
		return nil, classifyModelError(err)
	}

	class, confidence := model.Argmax(probs)
	return &Prediction{
		PredictedClass: class,
		Confidence:     confidence,
		ModelVersion:   snap.Version,
	}, nil
}

func (s *service) Retrain(ctx context.Context) (*TrainingReport, error) {
	start := time.Now()
	snap := s.handle.Current()

	var (
		candidate *model.Classifier
		report    *TrainingReport
	)

	err := s.ledger.Claim(ctx, func(batch []products.Product) error {
		x, y, err := s.dataset(ctx, batch, snap.Model.Classes())
		if err != nil {
			return err
		}

		next, history, err := snap.Model.Fit(ctx, x, y, s.cfg.Fit)
		if err != nil {
			return classifyFitError(err)
		}

		scored, err := score(next, x, y)
		if err != nil {
			return err
		}

		candidate = next
		report = &TrainingReport{Report: scored, Records: len(batch), History: history}
		return nil
	})
	if err != nil {
		return nil, s.runFailed(KindRetrain, start, err)
	}

	report.ModelVersion = s.handle.Publish(candidate)
	report.Duration = time.Since(start)
	s.persist(candidate, report.ModelVersion)

	s.recorder.ModelPublished(report.ModelVersion)
	s.recorder.RunScored(KindRetrain, report.Records, report.F1Score)
	s.recorder.RunCompleted(KindRetrain, OutcomeSuccess, report.Duration)

	s.logger.Info(
		"model retrained",
		"records", report.Records,
		"f1_score", report.F1Score,
		"version", report.ModelVersion,
		"duration", report.Duration,
	)
	return report, nil
}

func (s *service) Evaluate(ctx context.Context) (*EvaluationReport, error) {
	start := time.Now()
	snap := s.handle.Current()

	batch, err := s.ledger.Untrained(ctx)
	if err != nil {
		return nil, s.runFailed(KindEvaluate, start, fmt.Errorf("fetch untrained products: %w", err))
	}
	if len(batch) == 0 {
		return nil, s.runFailed(KindEvaluate, start, ErrEmptyDataset)
	}

	x, y, err := s.dataset(ctx, batch, snap.Model.Classes())
	if err != nil {
		return nil, s.runFailed(KindEvaluate, start, err)
	}

	scored, err := score(snap.Model, x, y)
	if err != nil {
		return nil, s.runFailed(KindEvaluate, start, err)
	}

	s.recorder.RunScored(KindEvaluate, len(batch), scored.F1Score)
	s.recorder.RunCompleted(KindEvaluate, OutcomeSuccess, time.Since(start))

	s.logger.Info("model evaluated", "records", len(batch), "f1_score", scored.F1Score, "version", snap.Version)
	return &EvaluationReport{Report: scored, Records: len(batch), ModelVersion: snap.Version}, nil
}

func (s *service) Status(ctx context.Context) (*Status, error) {
	counts, err := s.ledger.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	snap := s.handle.Current()
	return &Status{
		ModelVersion: snap.Version,
		PublishedAt:  snap.PublishedAt,
		Classes:      snap.Model.Classes(),
		Products:     counts,
	}, nil
}

// dataset builds feature vectors and labels for batch, preserving order.
// The first unusable record cancels the rest and fails the whole batch.
func (s *service) dataset(ctx context.Context, batch []products.Product, classes int) ([]features.Vector, []int, error) {
	x := make([]features.Vector, len(batch))
	y := make([]int, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i, p := range batch {
		g.Go(func() error {
			if p.Category < 0 || p.Category >= classes {
				return fmt.Errorf(
					"%w: product %s category %d outside [0, %d)",
					ErrTrainingData, p.ID, p.Category, classes,
				)
			}

			v, err := s.vectorize(gctx, p)
			if err != nil {
				if errors.Is(err, ErrConfiguration) {
					return err
				}
				return fmt.Errorf("%w: product %s: %w", ErrTrainingData, p.ID, err)
			}

			x[i], y[i] = v, p.Category
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func (s *service) vectorize(ctx context.Context, p products.Product) (features.Vector, error) {
	img, err := s.images.Load(ctx, p.ImageKey)
	if err != nil {
		return features.Vector{}, fmt.Errorf("%w: %w", ErrImageLoad, err)
	}
	return s.extract(p.Text(), img)
}

func (s *service) extract(text string, img image.Image) (features.Vector, error) {
	v, err := s.extractor.Extract(text, img)
	if err != nil {
		if errors.Is(err, features.ErrNotLoaded) {
			return features.Vector{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return features.Vector{}, fmt.Errorf("%w: %w", ErrFeatureExtraction, err)
	}
	return v, nil
}

func (s *service) persist(m *model.Classifier, version int64) {
	if s.cfg.ArtifactPath == "" {
		return
	}
	if err := m.Save(s.cfg.ArtifactPath); err != nil {
		s.logger.Error("persist model failed", "version", version, "path", s.cfg.ArtifactPath, "error", err)
		return
	}
	s.logger.Info("model persisted", "version", version, "path", s.cfg.ArtifactPath)
}

// runFailed records a run that did not produce a report and normalizes an
// empty claim into ErrEmptyDataset.
func (s *service) runFailed(kind string, start time.Time, err error) error {
	if errors.Is(err, products.ErrNothingToClaim) || errors.Is(err, ErrEmptyDataset) {
		s.recorder.RunCompleted(kind, OutcomeEmpty, time.Since(start))
		s.logger.Info("no new data available", "kind", kind)
		return ErrEmptyDataset
	}

	s.recorder.RunCompleted(kind, OutcomeError, time.Since(start))
	s.logger.Error("run failed", "kind", kind, "error", err)
	return err
}

func score(m *model.Classifier, x []features.Vector, y []int) (scoring.Report, error) {
	pred := make([]int, len(x))
	for i, v := range x {
		probs, err := m.Predict(v)
		if err != nil {
			return scoring.Report{}, classifyModelError(err)
		}
		pred[i], _ = model.Argmax(probs)
	}

	report, err := scoring.Evaluate(y, pred)
	if err != nil {
		return scoring.Report{}, fmt.Errorf("%w: %w", ErrTrainingData, err)
	}
	return report, nil
}

func classifyModelError(err error) error {
	if errors.Is(err, model.ErrShape) {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return err
}

func classifyFitError(err error) error {
	switch {
	case errors.Is(err, model.ErrShape):
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	case errors.Is(err, model.ErrLabel), errors.Is(err, model.ErrInput):
		return fmt.Errorf("%w: %w", ErrTrainingData, err)
	}
	return fmt.Errorf("fit model: %w", err)
}
