// Package model implements the multimodal product classifier: a text branch and
// an image branch fused into a softmax head whose width fixes the label space.
package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/JaimeStill/curator/internal/features"
)

// Classifier is immutable once constructed; Fit returns a new instance.
type Classifier struct {
	text  dense
	image dense
	head  dense
}

// New initializes a classifier with Glorot-uniform weights drawn from seed.
func New(textDim, imageDim, hidden, classes int, seed uint64) (*Classifier, error) {
	if textDim < 1 || imageDim < 1 || hidden < 1 || classes < 2 {
		return nil, fmt.Errorf(
			"%w: dims text=%d image=%d hidden=%d classes=%d",
			ErrInvalidArtifact, textDim, imageDim, hidden, classes,
		)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &Classifier{
		text:  newDense(textDim, hidden, rng),
		image: newDense(imageDim, hidden, rng),
		head:  newDense(2*hidden, classes, rng),
	}, nil
}

// TextDim returns the expected text vector width.
func (c *Classifier) TextDim() int { return c.text.In }

// ImageDim returns the expected image embedding width.
func (c *Classifier) ImageDim() int { return c.image.In }

// Classes returns the output width, which is the number of categories.
func (c *Classifier) Classes() int { return c.head.Out }

// CheckShapes reports whether the classifier accepts vectors of the given widths.
func (c *Classifier) CheckShapes(textDim, imageDim int) error {
	if textDim != c.TextDim() || imageDim != c.ImageDim() {
		return fmt.Errorf(
			"%w: extractor produces text=%d image=%d, model expects text=%d image=%d",
			ErrShape, textDim, imageDim, c.TextDim(), c.ImageDim(),
		)
	}
	return nil
}

// Predict returns the class probability distribution for v.
func (c *Classifier) Predict(v features.Vector) ([]float64, error) {
	if err := c.CheckShapes(len(v.Text), len(v.Image)); err != nil {
		return nil, err
	}
	return c.newPass().forward(v).probs, nil
}

func (c *Classifier) clone() *Classifier {
	return &Classifier{
		text:  c.text.clone(),
		image: c.image.clone(),
		head:  c.head.clone(),
	}
}

func (c *Classifier) validate() error {
	if !c.text.valid() || !c.image.valid() || !c.head.valid() {
		return fmt.Errorf("%w: layer weights do not match declared dims", ErrInvalidArtifact)
	}
	if c.text.Out+c.image.Out != c.head.In {
		return fmt.Errorf(
			"%w: head input %d does not match branch outputs %d+%d",
			ErrInvalidArtifact, c.head.In, c.text.Out, c.image.Out,
		)
	}
	if c.head.Out < 2 {
		return fmt.Errorf("%w: at least two classes required", ErrInvalidArtifact)
	}
	return nil
}

// pass holds the activations of one forward evaluation.
type pass struct {
	c     *Classifier
	fused []float64
	probs []float64
}

func (c *Classifier) newPass() *pass {
	return &pass{
		c:     c,
		fused: make([]float64, c.head.In),
		probs: make([]float64, c.head.Out),
	}
}

func (p *pass) textHidden() []float64  { return p.fused[:p.c.text.Out] }
func (p *pass) imageHidden() []float64 { return p.fused[p.c.text.Out:] }

func (p *pass) forward(v features.Vector) *pass {
	p.c.text.forward(v.Text, p.textHidden())
	p.c.image.forward(v.Image, p.imageHidden())
	relu(p.fused)
	p.c.head.forward(p.fused, p.probs)
	softmax(p.probs)
	return p
}
