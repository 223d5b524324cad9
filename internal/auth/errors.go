package auth

import (
	"errors"
	"net/http"
)

var (
	ErrMissingToken = errors.New("bearer token required")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrForbidden    = errors.New("insufficient role")
)

// MapHTTPStatus maps auth errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
