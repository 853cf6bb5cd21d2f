package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/shopcore/authcore/internal/models"
)

const (
	// Refresh token cookie is scoped to the auth endpoints and hidden
	// from scripts. The CSRF cookie must stay readable for the
	// double-submit check.
	RefreshCookieName = "refresh_token"
	CSRFCookieName    = "csrf_token"

	refreshCookiePath = "/api/auth"
)

// CookieWriter sets and clears the session cookies. Secure is off only
// for local plain-http runs.
type CookieWriter struct {
	Secure bool
}

func (c CookieWriter) SetSession(w http.ResponseWriter, session models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    session.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  session.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    session.CSRFToken,
		Path:     "/",
		Expires:  session.RefreshExpiresAt,
		HttpOnly: false,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c CookieWriter) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// RefreshFromRequest extracts the raw refresh token cookie
func RefreshFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// ClientIP picks the original client address: first hop of
// X-Forwarded-For when a proxy filled it, the socket peer otherwise
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
