package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/shopcore/authcore/internal/handlers/middleware"
	"github.com/shopcore/authcore/internal/logger"
	"github.com/shopcore/authcore/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Secure controls the Secure flag on session cookies
	Secure bool
}

func NewRouter(
	cfg RouterConfig,
	auth sessionService,
	checker permissionChecker,
	l logger.Logger,
) http.Handler {
	cookies := CookieWriter{Secure: cfg.Secure}

	authMiddleware := middleware.Auth(auth)
	csrfMiddleware := middleware.CSRF(CSRFCookieName)

	withAuth := func(h http.Handler) http.Handler {
		return chain(h, authMiddleware, csrfMiddleware)
	}

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /register", handleRegister(auth, l))
	apiauth.Handle("POST /login", handleLogin(auth, cookies, l))

	// Cookie-authenticated state changes carry the double-submit check
	apiauth.Handle("POST /refresh", chain(handleRefresh(auth, cookies, l), csrfMiddleware))
	apiauth.Handle("POST /logout", chain(handleLogout(auth, cookies, l), csrfMiddleware))

	apiauth.Handle("POST /logout-all", withAuth(handleLogoutAll(auth, cookies, l)))
	apiauth.Handle("POST /change-password", withAuth(handleChangePassword(auth, cookies, l)))
	apiauth.Handle("GET /me", chain(handleMe(), authMiddleware))

	apiadmin := http.NewServeMux()
	apiadmin.Handle("POST /users/{id}/roles", handleAssignRole(checker, l))
	apiadmin.Handle("DELETE /users/{id}/roles/{role}", handleRemoveRole(checker, l))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/admin/", http.StripPrefix("/api/admin",
		chain(apiadmin,
			authMiddleware,
			csrfMiddleware,
			middleware.RequirePermission(checker, "rbac.manage"),
		),
	))

	return chain(root,
		middleware.Logger(l),
	)
}

type sessionService interface {
	// Register user with normalized email
	// Has to return apperrors.ErrUserAlreadyExists if email is taken
	Register(ctx context.Context, email string, password string, ip string) (models.User, error)

	// Login user and start a new refresh token family
	// Bad email and bad password both fail with apperrors.ErrAuthenticationFailed
	Login(ctx context.Context, email string, password string, ip string, userAgent string) (models.Session, error)

	// Rotate the refresh token
	// If token was already rotated: apperrors.ErrRefreshTokenReuseDetected
	// If token expired: apperrors.ErrRefreshTokenExpired
	// If token revoked: apperrors.ErrRefreshTokenRevoked
	Refresh(ctx context.Context, rawToken string, ip string, userAgent string) (models.Session, error)

	// Revoke one session, success even if the token is unknown
	Logout(ctx context.Context, rawToken string) error

	// Revoke every session of the user and bump token version
	LogoutAll(ctx context.Context, userID uuid.UUID) error

	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error

	// Verify access token and build the request principal
	Authenticate(ctx context.Context, accessToken string) (models.Principal, error)
}

type permissionChecker interface {
	Check(ctx context.Context, principal models.Principal, permission string) error
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string) error
	RemoveRole(ctx context.Context, userID uuid.UUID, roleName string) error
}
