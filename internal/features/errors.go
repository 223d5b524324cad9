package features

import "errors"

var (
	// ErrNotLoaded indicates an extractor component has no fitted parameters.
	ErrNotLoaded = errors.New("feature component not loaded")
	// ErrInvalidArtifact indicates a serialized vectorizer or backbone is malformed.
	ErrInvalidArtifact = errors.New("invalid feature artifact")
	// ErrMissingImage indicates extraction was attempted without an image.
	ErrMissingImage = errors.New("image required")
	// ErrShape indicates a tensor does not match the backbone's expected input.
	ErrShape = errors.New("tensor shape mismatch")
	// ErrDecode indicates image bytes could not be fetched or decoded.
	ErrDecode = errors.New("image could not be decoded")
)
