// Package features turns a product's text and image into the fixed-width
// numeric vectors consumed by the classifier.
package features

import (
	"context"
	"fmt"
	"image"
	"io"
)

// Vector is the extracted representation of one product.
type Vector struct {
	Text  []float64
	Image []float64
}

// Extractor combines a fitted vectorizer with a frozen image backbone.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	vectorizer *Vectorizer
	backbone   *Backbone
}

// NewExtractor returns an extractor over the given components. Either may be
// nil, in which case Extract fails with ErrNotLoaded.
func NewExtractor(v *Vectorizer, b *Backbone) *Extractor {
	return &Extractor{vectorizer: v, backbone: b}
}

// TextDim returns the text vector width, or 0 when no vectorizer is loaded.
func (e *Extractor) TextDim() int {
	if e.vectorizer == nil {
		return 0
	}
	return e.vectorizer.Dim()
}

// ImageDim returns the image embedding width, or 0 when no backbone is loaded.
func (e *Extractor) ImageDim() int {
	if e.backbone == nil {
		return 0
	}
	return e.backbone.Dim()
}

// Extract vectorizes text and embeds img by letterboxing it to the backbone's
// input size, normalizing, running the convolution stack, and pooling.
func (e *Extractor) Extract(text string, img image.Image) (Vector, error) {
	if e.vectorizer == nil || e.backbone == nil {
		return Vector{}, ErrNotLoaded
	}
	if img == nil {
		return Vector{}, ErrMissingImage
	}

	canvas := Letterbox(img, e.backbone.InputSize)
	fm, err := e.backbone.Forward(Normalize(canvas, e.backbone.Mean, e.backbone.Std))
	if err != nil {
		return Vector{}, err
	}

	return Vector{
		Text:  e.vectorizer.Transform(text),
		Image: GlobalAveragePool(fm),
	}, nil
}

// ImageLoader fetches and decodes the image stored under key.
type ImageLoader interface {
	Load(ctx context.Context, key string) (image.Image, error)
}

// Downloader opens a stored blob for reading.
type Downloader interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

type blobLoader struct {
	blobs Downloader
}

// NewBlobLoader returns an ImageLoader that reads images from blob storage.
func NewBlobLoader(blobs Downloader) ImageLoader {
	return &blobLoader{blobs: blobs}
}

func (l *blobLoader) Load(ctx context.Context, key string) (image.Image, error) {
	body, err := l.blobs.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrDecode, key, err)
	}
	defer body.Close()

	img, err := Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return img, nil
}
