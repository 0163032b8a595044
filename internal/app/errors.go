package app

import (
	"errors"
	"fmt"
	"net/http"

	"symposium/api/internal/content"
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *content.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validationErr.Error(), validationErr.Fields
	}
	switch {
	case errors.Is(err, content.ErrInvalid):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Content not found", nil
	case errors.Is(err, content.ErrInvalidMediaType):
		return http.StatusUnsupportedMediaType, "INVALID_MEDIA_TYPE", "Unsupported media type", nil
	case errors.Is(err, content.ErrUploadFailed):
		return http.StatusBadGateway, "UPLOAD_FAILED", "Media upload failed, please retry", nil
	case errors.Is(err, content.ErrUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE", "Storage is unavailable, please retry", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
