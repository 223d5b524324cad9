package model

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// dense is a fully connected layer with row-major weights of shape (out, in).
type dense struct {
	In      int       `json:"in"`
	Out     int       `json:"out"`
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
}

func newDense(in, out int, rng *rand.Rand) dense {
	d := dense{
		In:      in,
		Out:     out,
		Weights: make([]float64, in*out),
		Bias:    make([]float64, out),
	}
	limit := math.Sqrt(6 / float64(in+out))
	for i := range d.Weights {
		d.Weights[i] = (rng.Float64()*2 - 1) * limit
	}
	return d
}

func (d dense) valid() bool {
	return d.In > 0 && d.Out > 0 && len(d.Weights) == d.In*d.Out && len(d.Bias) == d.Out
}

func (d dense) row(o int) []float64 {
	return d.Weights[o*d.In : (o+1)*d.In]
}

func (d dense) clone() dense {
	c := d
	c.Weights = append([]float64(nil), d.Weights...)
	c.Bias = append([]float64(nil), d.Bias...)
	return c
}

// forward writes W·x + b into out.
func (d dense) forward(x, out []float64) {
	for o := range d.Out {
		out[o] = floats.Dot(d.row(o), x) + d.Bias[o]
	}
}

// backward accumulates the gradients for upstream gradient g and input x
// into grad, and writes the input gradient into dx when it is non-nil.
func (d dense) backward(x, g []float64, grad *dense, dx []float64) {
	for o := range d.Out {
		if g[o] == 0 {
			continue
		}
		floats.AddScaled(grad.row(o), g[o], x)
		grad.Bias[o] += g[o]
	}
	if dx == nil {
		return
	}
	for i := range dx {
		dx[i] = 0
	}
	for o := range d.Out {
		if g[o] != 0 {
			floats.AddScaled(dx, g[o], d.row(o))
		}
	}
}

func (d dense) zero() dense {
	return dense{
		In:      d.In,
		Out:     d.Out,
		Weights: make([]float64, len(d.Weights)),
		Bias:    make([]float64, len(d.Bias)),
	}
}

func (d dense) reset() {
	floats.Scale(0, d.Weights)
	floats.Scale(0, d.Bias)
}

// step applies momentum SGD: v = μv - lr·g/n, w += v.
func (d dense) step(grad, velocity dense, lr, momentum float64, n int) {
	scale := -lr / float64(n)
	apply := func(w, g, v []float64) {
		floats.Scale(momentum, v)
		floats.AddScaled(v, scale, g)
		floats.Add(w, v)
	}
	apply(d.Weights, grad.Weights, velocity.Weights)
	apply(d.Bias, grad.Bias, velocity.Bias)
}

func relu(x []float64) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// softmax replaces logits with normalized probabilities.
func softmax(x []float64) {
	m := floats.Max(x)
	var sum float64
	for i, v := range x {
		x[i] = math.Exp(v - m)
		sum += x[i]
	}
	floats.Scale(1/sum, x)
}
