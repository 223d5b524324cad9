package model

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type artifact struct {
	Text  dense `json:"text"`
	Image dense `json:"image"`
	Head  dense `json:"head"`
}

// Load reads a classifier artifact from path.
func Load(path string) (*Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes and validates a classifier artifact.
func Read(r io.Reader) (*Classifier, error) {
	var a artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	c := &Classifier{text: a.Text, image: a.Image, head: a.Head}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Write encodes c as a classifier artifact.
func (c *Classifier) Write(w io.Writer) error {
	return json.NewEncoder(w).Encode(artifact{Text: c.text, Image: c.image, Head: c.head})
}

// Save writes c to path atomically by writing a sibling temp file and renaming it.
func (c *Classifier) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := c.Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("encode model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}
