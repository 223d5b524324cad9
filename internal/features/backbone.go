package features

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense channel-major (C, H, W) activation volume.
type Tensor struct {
	C, H, W int
	Data    []float64
}

// NewTensor allocates a zeroed tensor.
func NewTensor(c, h, w int) Tensor {
	return Tensor{C: c, H: h, W: w, Data: make([]float64, c*h*w)}
}

// At returns the value at channel c, row y, column x.
func (t Tensor) At(c, y, x int) float64 {
	return t.Data[(c*t.H+y)*t.W+x]
}

// Conv is one frozen convolution followed by ReLU.
// Weights are laid out as [filter][in channel][ky][kx].
type Conv struct {
	Filters int       `json:"filters"`
	Kernel  int       `json:"kernel"`
	Stride  int       `json:"stride"`
	Padding int       `json:"padding"`
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
}

// Backbone is a frozen convolutional feature extractor with fixed input
// geometry and per-channel normalization statistics.
type Backbone struct {
	InputSize int        `json:"input_size"`
	Mean      [3]float64 `json:"mean"`
	Std       [3]float64 `json:"std"`
	Layers    []Conv     `json:"layers"`
}

// LoadBackbone reads a backbone artifact from path.
func LoadBackbone(path string) (*Backbone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open backbone: %w", err)
	}
	defer f.Close()
	return ReadBackbone(f)
}

// ReadBackbone decodes and validates a backbone artifact.
func ReadBackbone(r io.Reader) (*Backbone, error) {
	var b Backbone
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("%w: backbone: %w", ErrInvalidArtifact, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks that every layer's parameters agree with the activation
// shape flowing into it, starting from a 3-channel InputSize square.
func (b *Backbone) Validate() error {
	if b.InputSize < 1 {
		return fmt.Errorf("%w: input_size must be positive", ErrInvalidArtifact)
	}
	if len(b.Layers) == 0 {
		return fmt.Errorf("%w: backbone has no layers", ErrInvalidArtifact)
	}
	for i, s := range b.Std {
		if s == 0 {
			return fmt.Errorf("%w: std[%d] is zero", ErrInvalidArtifact, i)
		}
	}

	c, h, w := 3, b.InputSize, b.InputSize
	for i, l := range b.Layers {
		if l.Filters < 1 || l.Kernel < 1 || l.Stride < 1 || l.Padding < 0 {
			return fmt.Errorf("%w: layer %d has invalid geometry", ErrInvalidArtifact, i)
		}
		if want := l.Filters * c * l.Kernel * l.Kernel; len(l.Weights) != want {
			return fmt.Errorf("%w: layer %d has %d weights, want %d", ErrInvalidArtifact, i, len(l.Weights), want)
		}
		if len(l.Bias) != l.Filters {
			return fmt.Errorf("%w: layer %d has %d biases, want %d", ErrInvalidArtifact, i, len(l.Bias), l.Filters)
		}
		h, w = l.outSize(h), l.outSize(w)
		if h < 1 || w < 1 {
			return fmt.Errorf("%w: layer %d collapses the feature map", ErrInvalidArtifact, i)
		}
		c = l.Filters
	}
	return nil
}

// Dim returns the channel count of the final feature map, which is the
// width of the pooled image embedding.
func (b *Backbone) Dim() int {
	if len(b.Layers) == 0 {
		return 0
	}
	return b.Layers[len(b.Layers)-1].Filters
}

// Forward runs the convolution stack on a normalized (3, InputSize, InputSize) tensor.
func (b *Backbone) Forward(in Tensor) (Tensor, error) {
	if in.C != 3 || in.H != b.InputSize || in.W != b.InputSize || len(in.Data) != in.C*in.H*in.W {
		return Tensor{}, fmt.Errorf("%w: got (%d, %d, %d), want (3, %d, %d)",
			ErrShape, in.C, in.H, in.W, b.InputSize, b.InputSize)
	}

	t := in
	for _, l := range b.Layers {
		t = l.forward(t)
	}
	return t, nil
}

func (l Conv) outSize(n int) int {
	if n+2*l.Padding < l.Kernel {
		return 0
	}
	return (n+2*l.Padding-l.Kernel)/l.Stride + 1
}

func (l Conv) forward(in Tensor) Tensor {
	out := NewTensor(l.Filters, l.outSize(in.H), l.outSize(in.W))
	k := l.Kernel
	patch := make([]float64, in.C*k*k)

	for oy := range out.H {
		for ox := range out.W {
			l.gather(in, oy, ox, patch)
			for f := range l.Filters {
				kernel := l.Weights[f*len(patch) : (f+1)*len(patch)]
				v := floats.Dot(kernel, patch) + l.Bias[f]
				if v > 0 {
					out.Data[(f*out.H+oy)*out.W+ox] = v
				}
			}
		}
	}
	return out
}

// gather copies the receptive field at output position (oy, ox) into patch,
// treating padded positions as zero.
func (l Conv) gather(in Tensor, oy, ox int, patch []float64) {
	k := l.Kernel
	y0 := oy*l.Stride - l.Padding
	x0 := ox*l.Stride - l.Padding

	i := 0
	for c := range in.C {
		for ky := range k {
			y := y0 + ky
			for kx := range k {
				x := x0 + kx
				if y < 0 || y >= in.H || x < 0 || x >= in.W {
					patch[i] = 0
				} else {
					patch[i] = in.At(c, y, x)
				}
				i++
			}
		}
	}
}

// GlobalAveragePool averages each channel over its spatial extent,
// yielding a fixed-length vector independent of the map's height and width.
func GlobalAveragePool(t Tensor) []float64 {
	out := make([]float64, t.C)
	area := t.H * t.W
	if area == 0 {
		return out
	}
	for c := range t.C {
		out[c] = floats.Sum(t.Data[c*area:(c+1)*area]) / float64(area)
	}
	return out
}
