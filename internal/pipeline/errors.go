package pipeline

import (
	"errors"
	"net/http"
)

var (
	// ErrConfiguration marks missing or mismatched model artifacts. It is
	// fatal at startup and never retried per request.
	ErrConfiguration = errors.New("model configuration error")
	// ErrFeatureExtraction marks input that could not be turned into features.
	ErrFeatureExtraction = errors.New("feature extraction failed")
	// ErrImageLoad marks an image that is missing or cannot be decoded.
	ErrImageLoad = errors.New("image load failed")
	// ErrInference wraps any failure on the single-item classification path.
	ErrInference = errors.New("inference failed")
	// ErrTrainingData aborts a whole training or evaluation run when any
	// record in the batch is unusable.
	ErrTrainingData = errors.New("unusable training data")
	// ErrEmptyDataset signals there is nothing to train or evaluate.
	// It is an outcome, not a failure.
	ErrEmptyDataset = errors.New("no new data available for training")
	// ErrTrainingInProgress rejects a retrain while another is running.
	ErrTrainingInProgress = errors.New("training already in progress")
)

// MapHTTPStatus maps pipeline errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrEmptyDataset):
		return http.StatusOK
	case errors.Is(err, ErrTrainingInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrImageLoad), errors.Is(err, ErrFeatureExtraction):
		return http.StatusBadRequest
	case errors.Is(err, ErrTrainingData):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
