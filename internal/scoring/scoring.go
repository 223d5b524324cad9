// Package scoring computes classification quality metrics for a labeled batch.
package scoring

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrEmpty is returned when there is nothing to score.
	ErrEmpty = errors.New("no samples to score")
	// ErrLength is returned when true and predicted labels differ in count.
	ErrLength = errors.New("label length mismatch")
)

// ClassMetrics are the per-category results.
type ClassMetrics struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Average is an aggregate across categories.
type Average struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
}

// Report is the outcome of scoring one batch. F1Score is the
// support-weighted F1 across categories present in the true labels.
type Report struct {
	F1Score              float64        `json:"f1_score"`
	Accuracy             float64        `json:"accuracy"`
	Support              int            `json:"support"`
	Macro                Average        `json:"macro_avg"`
	Weighted             Average        `json:"weighted_avg"`
	Classes              []ClassMetrics `json:"classes"`
	ClassificationReport string         `json:"classification_report"`
}

// Evaluate scores yPred against yTrue. A row is reported for every label that
// occurs in yTrue, in ascending order. Undefined ratios are reported as 0.
func Evaluate(yTrue, yPred []int) (Report, error) {
	if len(yTrue) == 0 {
		return Report{}, ErrEmpty
	}
	if len(yTrue) != len(yPred) {
		return Report{}, fmt.Errorf("%w: %d true, %d predicted", ErrLength, len(yTrue), len(yPred))
	}

	support := map[int]int{}
	predicted := map[int]int{}
	hits := map[int]int{}
	var correct int

	for i, t := range yTrue {
		p := yPred[i]
		support[t]++
		predicted[p]++
		if t == p {
			hits[t]++
			correct++
		}
	}

	labels := make([]int, 0, len(support))
	for l := range support {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	n := len(yTrue)
	r := Report{
		Accuracy: ratio(correct, n),
		Support:  n,
		Classes:  make([]ClassMetrics, 0, len(labels)),
	}

	for _, l := range labels {
		m := ClassMetrics{
			Label:     l,
			Precision: ratio(hits[l], predicted[l]),
			Recall:    ratio(hits[l], support[l]),
			Support:   support[l],
		}
		if s := m.Precision + m.Recall; s > 0 {
			m.F1 = 2 * m.Precision * m.Recall / s
		}
		r.Classes = append(r.Classes, m)

		w := float64(m.Support) / float64(n)
		r.Weighted.Precision += w * m.Precision
		r.Weighted.Recall += w * m.Recall
		r.Weighted.F1 += w * m.F1

		k := float64(len(labels))
		r.Macro.Precision += m.Precision / k
		r.Macro.Recall += m.Recall / k
		r.Macro.F1 += m.F1 / k
	}

	r.F1Score = r.Weighted.F1
	r.ClassificationReport = r.render()
	return r, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

const width = len("weighted avg")

// render lays out the report as a fixed-width precision/recall/f1/support table.
func (r Report) render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, m := range r.Classes {
		row(&b, strconv.Itoa(m.Label), m.Precision, m.Recall, m.F1, m.Support)
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.Support)
	row(&b, "macro avg", r.Macro.Precision, r.Macro.Recall, r.Macro.F1, r.Support)
	row(&b, "weighted avg", r.Weighted.Precision, r.Weighted.Recall, r.Weighted.F1, r.Support)

	return b.String()
}

func row(b *strings.Builder, name string, precision, recall, f1 float64, support int) {
	fmt.Fprintf(b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, name, precision, recall, f1, support)
}
