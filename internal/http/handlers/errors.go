package handlers

import (
	"errors"
	"net/http"

	"user-admin-server/internal/services"
	"user-admin-server/internal/utils"
)

func mapServiceError(err error) *utils.AppError {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return utils.NewAppError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", verr.Fields)
	case errors.Is(err, services.ErrInvalidCredentials):
		return utils.NewAppError(http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
	case errors.Is(err, services.ErrDuplicateEmail):
		return utils.NewAppError(http.StatusBadRequest, "DUPLICATE_EMAIL", "email already exists", nil)
	case errors.Is(err, services.ErrUserNotFound):
		return utils.NewAppError(http.StatusNotFound, "NOT_FOUND", "user not found", nil)
	case errors.Is(err, services.ErrUpstream):
		return utils.NewAppError(http.StatusBadGateway, "UPSTREAM_ERROR", "error importing users", err.Error())
	default:
		return utils.NewAppError(http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", err.Error())
	}
}
