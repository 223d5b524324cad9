package features

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strings"

	"gonum.org/v1/gonum/floats"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Vectorizer maps text to a fixed-width TF-IDF vector using a vocabulary and
// inverse document frequencies fitted offline. It is immutable after load.
type Vectorizer struct {
	vocabulary  map[string]int
	idf         []float64
	lowercase   bool
	sublinearTF bool
	norm        string
}

type vectorizerArtifact struct {
	Vocabulary  map[string]int `json:"vocabulary"`
	IDF         []float64      `json:"idf"`
	Lowercase   *bool          `json:"lowercase,omitempty"`
	SublinearTF bool           `json:"sublinear_tf,omitempty"`
	Norm        string         `json:"norm,omitempty"`
}

// LoadVectorizer reads a vectorizer artifact from path.
func LoadVectorizer(path string) (*Vectorizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vectorizer: %w", err)
	}
	defer f.Close()
	return ReadVectorizer(f)
}

// ReadVectorizer decodes a vectorizer artifact.
// Lowercasing defaults to on and norm defaults to "l2".
func ReadVectorizer(r io.Reader) (*Vectorizer, error) {
	var a vectorizerArtifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: vectorizer: %w", ErrInvalidArtifact, err)
	}

	lowercase := true
	if a.Lowercase != nil {
		lowercase = *a.Lowercase
	}
	if a.Norm == "" {
		a.Norm = "l2"
	}

	return NewVectorizer(a.Vocabulary, a.IDF, lowercase, a.SublinearTF, a.Norm)
}

// NewVectorizer builds a vectorizer from fitted parameters.
// Every vocabulary index must address exactly one idf weight.
func NewVectorizer(vocabulary map[string]int, idf []float64, lowercase, sublinearTF bool, norm string) (*Vectorizer, error) {
	if len(vocabulary) == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary", ErrInvalidArtifact)
	}
	if len(idf) != len(vocabulary) {
		return nil, fmt.Errorf("%w: %d idf weights for %d terms", ErrInvalidArtifact, len(idf), len(vocabulary))
	}
	if norm != "l2" && norm != "none" {
		return nil, fmt.Errorf("%w: unsupported norm %q", ErrInvalidArtifact, norm)
	}

	seen := make([]bool, len(idf))
	for term, idx := range vocabulary {
		if idx < 0 || idx >= len(idf) || seen[idx] {
			return nil, fmt.Errorf("%w: term %q has invalid index %d", ErrInvalidArtifact, term, idx)
		}
		seen[idx] = true
	}

	return &Vectorizer{
		vocabulary:  vocabulary,
		idf:         idf,
		lowercase:   lowercase,
		sublinearTF: sublinearTF,
		norm:        norm,
	}, nil
}

// Dim returns the output vector width.
func (v *Vectorizer) Dim() int {
	return len(v.idf)
}

// Transform returns the TF-IDF vector for text. Unknown terms are ignored;
// text with no known terms yields the zero vector.
func (v *Vectorizer) Transform(text string) []float64 {
	out := make([]float64, len(v.idf))

	if v.lowercase {
		text = strings.ToLower(text)
	}
	for _, token := range tokenPattern.FindAllString(text, -1) {
		if idx, ok := v.vocabulary[token]; ok {
			out[idx]++
		}
	}

	for i, tf := range out {
		if tf == 0 {
			continue
		}
		if v.sublinearTF {
			tf = 1 + math.Log(tf)
		}
		out[i] = tf * v.idf[i]
	}

	if v.norm == "l2" {
		if n := floats.Norm(out, 2); n > 0 {
			floats.Scale(1/n, out)
		}
	}
	return out
}
