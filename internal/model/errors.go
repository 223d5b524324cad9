package model

import "errors"

var (
	// ErrShape indicates input vectors do not match the classifier's input widths.
	ErrShape = errors.New("input shape mismatch")
	// ErrLabel indicates a training label outside the classifier's output width.
	ErrLabel = errors.New("label out of range")
	// ErrInput indicates malformed training input such as mismatched lengths.
	ErrInput = errors.New("invalid training input")
	// ErrInvalidArtifact indicates a serialized classifier is malformed.
	ErrInvalidArtifact = errors.New("invalid model artifact")
)
