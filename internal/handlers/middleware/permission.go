package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopcore/authcore/internal/apperrors"
	"github.com/shopcore/authcore/internal/handlers/principalctx"
	"github.com/shopcore/authcore/internal/handlers/render"
	"github.com/shopcore/authcore/internal/models"
)

type permissionChecker interface {
	Check(ctx context.Context, principal models.Principal, permission string) error
}

// RequirePermission gates a route on one permission code.
// Must run after Auth: a request without principal is unauthorized.
func RequirePermission(checker permissionChecker, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := principalctx.FromContext(r.Context())
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			err := checker.Check(r.Context(), principal, permission)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, apperrors.ErrInsufficientPermissions):
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
			default:
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
		})
	}
}
