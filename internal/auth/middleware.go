package auth

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/JaimeStill/curator/pkg/handlers"
)

// Require returns middleware that admits requests carrying a valid bearer
// token and, when roles are given, one of those roles. An identity already
// placed on the context by an outer guard is reused.
func Require(v Verifier, logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				var err error
				if id, err = authenticate(v, r); err != nil {
					handlers.RespondError(w, logger, MapHTTPStatus(err), err)
					return
				}
				r = r.WithContext(WithIdentity(r.Context(), id))
			}

			if len(roles) > 0 && !slices.Contains(roles, id.Role) {
				handlers.RespondError(w, logger, http.StatusForbidden, ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(v Verifier, r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return Identity{}, ErrMissingToken
	}
	return v.Verify(strings.TrimSpace(token))
}

// Guards are the two access tiers applied to route groups.
type Guards struct {
	// User admits any authenticated caller.
	User func(http.Handler) http.Handler
	// Admin admits only the admin role.
	Admin func(http.Handler) http.Handler
}

// NewGuards builds the user and admin guards over v.
func NewGuards(v Verifier, logger *slog.Logger) Guards {
	logger = logger.With("handler", "auth")
	return Guards{
		User:  Require(v, logger),
		Admin: Require(v, logger, RoleAdmin),
	}
}
