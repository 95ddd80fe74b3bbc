package model

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrValidation      = errors.New("validation failed")
	ErrPersistence     = errors.New("persistence failure")
	ErrUnauthenticated = errors.New("authentication required")
)

// Error codes sent to clients.
const (
	CodeNotFound     = "not_found"
	CodeAccessDenied = "access_denied"
	CodeValidation   = "validation"
	CodePersistence  = "persistence"
	CodeAuth         = "authentication"
	CodeInternal     = "internal"
)

// ErrorCode maps an error to the closest taxonomy code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAccessDenied):
		return CodeAccessDenied
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrPersistence):
		return CodePersistence
	case errors.Is(err, ErrUnauthenticated):
		return CodeAuth
	default:
		return CodeInternal
	}
}

func HTTPStatus(err error) int {
	switch ErrorCode(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
