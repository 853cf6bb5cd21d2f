package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/shopcore/authcore/internal/apperrors"
	"github.com/shopcore/authcore/internal/handlers/principalctx"
	"github.com/shopcore/authcore/internal/handlers/render"
	"github.com/shopcore/authcore/internal/logger"
	"github.com/shopcore/authcore/internal/models"
)

type sessionResponse struct {
	AccessToken     string `json:"access_token"`
	AccessExpiresAt string `json:"access_expires_at"`
	CSRFToken       string `json:"csrf_token"`
}

func newSessionResponse(s models.Session) sessionResponse {
	return sessionResponse{
		AccessToken:     s.AccessToken,
		AccessExpiresAt: s.AccessExpiresAt.UTC().Format(time.RFC3339),
		CSRFToken:       s.CSRFToken,
	}
}

func handleRegister(auth sessionService, l logger.Logger) http.Handler {
	type RegisterRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8,max=128"`
	}
	type RegisterResponse struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RegisterRequest](w, r)
		if err != nil {
			return
		}

		user, err := auth.Register(r.Context(), data.Email, data.Password, ClientIP(r))
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User already exists", http.StatusConflict)
			case errors.Is(err, apperrors.ErrValidation):
				render.ServiceError(w, err.Error(), http.StatusBadRequest)
			default:
				l.Error("error while registering user", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSONStatus(w, RegisterResponse{ID: user.ID.String(), Email: user.Email}, http.StatusCreated)
	})
}

func handleLogin(auth sessionService, cookies CookieWriter, l logger.Logger) http.Handler {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[LoginRequest](w, r)
		if err != nil {
			return
		}

		session, err := auth.Login(r.Context(), data.Email, data.Password, ClientIP(r), r.UserAgent())
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrAuthenticationFailed):
				render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrUserNotActive):
				render.ServiceError(w, "Account is deactivated", http.StatusForbidden)
			default:
				l.Error("error while logging user in", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		cookies.SetSession(w, session)
		render.JSON(w, newSessionResponse(session))
	})
}

func handleRefresh(auth sessionService, cookies CookieWriter, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := RefreshFromRequest(r)
		if !ok {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		session, err := auth.Refresh(r.Context(), raw, ClientIP(r), r.UserAgent())
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrRefreshTokenReuseDetected),
				errors.Is(err, apperrors.ErrRefreshTokenRevoked),
				errors.Is(err, apperrors.ErrRefreshTokenExpired),
				errors.Is(err, apperrors.ErrRefreshTokenNotFound):
				cookies.ClearSession(w)
				render.ServiceError(w, "Refresh token is not valid", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrUserNotActive):
				cookies.ClearSession(w)
				render.ServiceError(w, "Account is deactivated", http.StatusForbidden)
			default:
				l.Error("error while refreshing session", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		cookies.SetSession(w, session)
		render.JSON(w, newSessionResponse(session))
	})
}

func handleLogout(auth sessionService, cookies CookieWriter, l logger.Logger) http.Handler {
	type LogoutResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No cookie still counts as logged out
		if raw, ok := RefreshFromRequest(r); ok {
			if err := auth.Logout(r.Context(), raw); err != nil {
				l.Error("error while logging user out", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}
		}

		cookies.ClearSession(w)
		render.JSON(w, LogoutResponse{Message: "Logged out"})
	})
}

func handleLogoutAll(auth sessionService, cookies CookieWriter, l logger.Logger) http.Handler {
	type LogoutAllResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if err := auth.LogoutAll(r.Context(), principal.UserID); err != nil {
			l.Error("error while logging user out everywhere", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		cookies.ClearSession(w)
		render.JSON(w, LogoutAllResponse{Message: "All sessions revoked"})
	})
}

func handleChangePassword(auth sessionService, cookies CookieWriter, l logger.Logger) http.Handler {
	type ChangePasswordRequest struct {
		OldPassword string `json:"old_password" validate:"required"`
		NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
	}
	type ChangePasswordResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		data, err := render.BindAndValidate[ChangePasswordRequest](w, r)
		if err != nil {
			return
		}

		err = auth.ChangePassword(r.Context(), principal.UserID, data.OldPassword, data.NewPassword)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrAuthenticationFailed):
				render.ServiceError(w, "Old password is not valid", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrValidation):
				render.ServiceError(w, err.Error(), http.StatusBadRequest)
			default:
				l.Error("error while changing password", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		// Every session is dead now, the client has to login again
		cookies.ClearSession(w)
		render.JSON(w, ChangePasswordResponse{Message: "Password changed, please login again"})
	})
}

func handleMe() http.Handler {
	type MeResponse struct {
		ID    string   `json:"id"`
		Email string   `json:"email"`
		Roles []string `json:"roles"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		render.JSON(w, MeResponse{
			ID:    principal.UserID.String(),
			Email: principal.Email,
			Roles: principal.Roles,
		})
	})
}
