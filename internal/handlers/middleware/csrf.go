package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/shopcore/authcore/internal/handlers/render"
)

const csrfHeader = "X-CSRF-Token"

// CSRF implements the double-submit check for routes authenticated by
// cookies: the header must repeat the csrf cookie value. An attacker
// site can make the browser send the cookie but cannot read it to
// forge the header.
func CSRF(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				render.ServiceError(w, "CSRF token missing", http.StatusForbidden)
				return
			}

			header := r.Header.Get(csrfHeader)
			if subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
				render.ServiceError(w, "CSRF token mismatch", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
