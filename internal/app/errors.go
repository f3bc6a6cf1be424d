package app

import (
	"errors"
	"fmt"
	"net/http"

	"collab/api/internal/auth"
	"collab/api/internal/authpw"
	"collab/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errForbidden       = domainError(http.StatusForbidden, "FORBIDDEN", "Not enough permissions", nil)
	errProjectNotFound = domainError(http.StatusNotFound, "NOT_FOUND", "Project not found", nil)
)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrWrongKind):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Could not validate credentials", nil
	case errors.Is(err, authpw.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusBadRequest, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrUsernameTaken):
		return http.StatusBadRequest, "USERNAME_EXISTS", "Username already taken", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Incorrect username/email or password", nil
	case errors.Is(err, authpw.ErrInactiveUser):
		return http.StatusBadRequest, "INACTIVE_USER", "Inactive user", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
