package products

import (
	"errors"
	"net/http"
)

// Domain errors for product operations.
var (
	ErrNotFound          = errors.New("product not found")
	ErrDuplicate         = errors.New("product already exists")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrFileTooLarge      = errors.New("image exceeds maximum upload size")
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNothingToClaim is returned by Claim when no product awaits training.
	ErrNothingToClaim = errors.New("no untrained products")
	// ErrClaimConflict is returned when the claimed rows could not all be
	// marked trained; the claim is rolled back.
	ErrClaimConflict = errors.New("claimed products changed during training")
)

// MapHTTPStatus maps product domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrClaimConflict), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidProduct):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
