package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/shopcore/authcore/internal/apperrors"
	"github.com/shopcore/authcore/internal/handlers/render"
	"github.com/shopcore/authcore/internal/logger"
)

func handleAssignRole(checker permissionChecker, l logger.Logger) http.Handler {
	type AssignRoleRequest struct {
		Role string `json:"role" validate:"required,min=1,max=50"`
	}
	type AssignRoleResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
			return
		}

		data, err := render.BindAndValidate[AssignRoleRequest](w, r)
		if err != nil {
			return
		}

		err = checker.AssignRole(r.Context(), userID, data.Role)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrRoleNotFound):
				render.ServiceError(w, "Role not found", http.StatusNotFound)
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "User not found", http.StatusNotFound)
			default:
				l.Error("error while assigning role", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, AssignRoleResponse{Message: "Role assigned"})
	})
}

func handleRemoveRole(checker permissionChecker, l logger.Logger) http.Handler {
	type RemoveRoleResponse struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Invalid user id", http.StatusBadRequest)
			return
		}

		role := r.PathValue("role")
		if role == "" {
			render.ServiceError(w, "Role is required", http.StatusBadRequest)
			return
		}

		if err := checker.RemoveRole(r.Context(), userID, role); err != nil {
			l.Error("error while removing role", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, RemoveRoleResponse{Message: "Role removed"})
	})
}
