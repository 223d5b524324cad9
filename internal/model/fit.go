package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/JaimeStill/curator/internal/features"
)

// FitOptions controls mini-batch training.
type FitOptions struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	LearningRate    float64
	Momentum        float64
	Seed            uint64
}

// DefaultFitOptions returns five epochs of batch-32 SGD with a 20% hold-out.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Epochs:          5,
		BatchSize:       32,
		ValidationSplit: 0.2,
		LearningRate:    0.01,
		Momentum:        0.9,
		Seed:            42,
	}
}

// EpochStats summarizes one pass over the training split.
// Validation fields are zero when the hold-out is empty.
type EpochStats struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss,omitempty"`
	ValAccuracy float64 `json:"val_accuracy,omitempty"`
}

// History records the outcome of a Fit.
type History struct {
	TrainSize      int          `json:"train_size"`
	ValidationSize int          `json:"validation_size"`
	Epochs         []EpochStats `json:"epochs"`
}

// Fit trains a copy of c on (x, y) and returns it; c is not modified and stays
// safe for concurrent Predict calls. The validation split is taken from the
// tail of the input before shuffling. Labels must lie in [0, Classes()).
func (c *Classifier) Fit(ctx context.Context, x []features.Vector, y []int, opts FitOptions) (*Classifier, History, error) {
	if err := c.checkTrainingSet(x, y); err != nil {
		return nil, History{}, err
	}
	if opts.Epochs < 1 || opts.BatchSize < 1 || opts.LearningRate <= 0 {
		return nil, History{}, fmt.Errorf("%w: epochs, batch size and learning rate must be positive", ErrInput)
	}
	if opts.ValidationSplit < 0 || opts.ValidationSplit >= 1 {
		return nil, History{}, fmt.Errorf("%w: validation split %v outside [0, 1)", ErrInput, opts.ValidationSplit)
	}

	n := len(x)
	nVal := int(float64(n) * opts.ValidationSplit)
	nTrain := n - nVal

	next := c.clone()
	grad := next.zeroed()
	velocity := next.zeroed()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed+1))

	order := make([]int, nTrain)
	for i := range order {
		order[i] = i
	}

	hist := History{TrainSize: nTrain, ValidationSize: nVal}

	for epoch := range opts.Epochs {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var loss float64
		var correct int

		for start := 0; start < nTrain; start += opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return nil, History{}, err
			}

			batch := order[start:min(start+opts.BatchSize, nTrain)]
			grad.reset()
			for _, i := range batch {
				l, ok := next.accumulate(x[i], y[i], grad)
				loss += l
				if ok {
					correct++
				}
			}
			next.step(grad, velocity, opts.LearningRate, opts.Momentum, len(batch))
		}

		stats := EpochStats{
			Epoch:    epoch + 1,
			Loss:     loss / float64(nTrain),
			Accuracy: float64(correct) / float64(nTrain),
		}
		if nVal > 0 {
			stats.ValLoss, stats.ValAccuracy = next.score(x[nTrain:], y[nTrain:])
		}
		hist.Epochs = append(hist.Epochs, stats)
	}

	return next, hist, nil
}

func (c *Classifier) checkTrainingSet(x []features.Vector, y []int) error {
	if len(x) == 0 {
		return fmt.Errorf("%w: no samples", ErrInput)
	}
	if len(x) != len(y) {
		return fmt.Errorf("%w: %d samples but %d labels", ErrInput, len(x), len(y))
	}
	for i := range x {
		if err := c.CheckShapes(len(x[i].Text), len(x[i].Image)); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if y[i] < 0 || y[i] >= c.Classes() {
			return fmt.Errorf("%w: sample %d has label %d, model has %d classes", ErrLabel, i, y[i], c.Classes())
		}
	}
	return nil
}

// accumulate adds the cross-entropy gradient for one sample into grad and
// returns the sample loss and whether the prediction was correct.
func (c *Classifier) accumulate(v features.Vector, label int, grad *Classifier) (float64, bool) {
	p := c.newPass().forward(v)
	pred, _ := Argmax(p.probs)
	loss := -math.Log(math.Max(p.probs[label], 1e-12))

	dLogits := append([]float64(nil), p.probs...)
	dLogits[label]--

	dFused := make([]float64, c.head.In)
	c.head.backward(p.fused, dLogits, &grad.head, dFused)
	for i, h := range p.fused {
		if h <= 0 {
			dFused[i] = 0
		}
	}

	split := c.text.Out
	c.text.backward(v.Text, dFused[:split], &grad.text, nil)
	c.image.backward(v.Image, dFused[split:], &grad.image, nil)

	return loss, pred == label
}

func (c *Classifier) score(x []features.Vector, y []int) (loss, accuracy float64) {
	var correct int
	for i := range x {
		p := c.newPass().forward(x[i])
		loss -= math.Log(math.Max(p.probs[y[i]], 1e-12))
		if pred, _ := Argmax(p.probs); pred == y[i] {
			correct++
		}
	}
	n := float64(len(x))
	return loss / n, float64(correct) / n
}

func (c *Classifier) zeroed() *Classifier {
	return &Classifier{text: c.text.zero(), image: c.image.zero(), head: c.head.zero()}
}

func (c *Classifier) reset() {
	c.text.reset()
	c.image.reset()
	c.head.reset()
}

func (c *Classifier) step(grad, velocity *Classifier, lr, momentum float64, n int) {
	c.text.step(grad.text, velocity.text, lr, momentum, n)
	c.image.step(grad.image, velocity.image, lr, momentum, n)
	c.head.step(grad.head, velocity.head, lr, momentum, n)
}

// Argmax returns the index and value of the largest probability.
// Ties resolve to the lowest index.
func Argmax(probs []float64) (int, float64) {
	if len(probs) == 0 {
		return -1, 0
	}
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best, probs[best]
}
