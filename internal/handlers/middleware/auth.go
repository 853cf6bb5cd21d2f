package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopcore/authcore/internal/handlers/principalctx"
	"github.com/shopcore/authcore/internal/handlers/render"
	"github.com/shopcore/authcore/internal/models"
)

type authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (models.Principal, error)
}

// Auth verifies the Bearer token and puts the principal in the context
func Auth(a authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := a.Authenticate(r.Context(), token)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := principalctx.NewContext(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}
