package app

import (
	"errors"
	"fmt"
	"net/http"

	"eventlog/api/internal/export"
	"eventlog/api/internal/gitrepo"
	"eventlog/api/internal/normalize"
	"eventlog/api/internal/store"
	"eventlog/api/internal/syncer"
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
	switch {
	case errors.Is(err, syncer.ErrRecordNotFound),
		errors.Is(err, export.ErrContentUnavailable),
		errors.Is(err, gitrepo.ErrNoHistory):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, "VERSION_CONFLICT", "EventLog was modified concurrently", nil
	case errors.Is(err, syncer.ErrEmptyRecordID):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "recordId is required", nil
	case errors.Is(err, normalize.ErrUnsupportedInput):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_INPUT", "Unsupported eventlog value", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'pdf', 'docx' or 'html'", nil
	case errors.Is(err, syncer.ErrNoTransport):
		return http.StatusServiceUnavailable, "TRANSPORT_UNAVAILABLE", "No outbound transport configured", nil
	case errors.Is(err, export.ErrPDFDependencyMissing),
		errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
