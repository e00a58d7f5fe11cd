package app

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"kisscoffee/site/internal/auth"
	"kisscoffee/site/internal/authpw"
	"kisscoffee/site/internal/export"
	"kisscoffee/site/internal/gate"
	"kisscoffee/site/internal/store"
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

// mapError turns an error into the HTTP status and body of a JSON response.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var throttled *authpw.ThrottleError
	if errors.As(err, &throttled) {
		return http.StatusTooManyRequests, "THROTTLED", throttled.Error(), map[string]any{"retryAfterSeconds": throttled.Wait}
	}
	if errors.Is(err, authpw.ErrInvalidCredentials) || errors.Is(err, gate.ErrInvalidCredentials) {
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Export format must be pdf or xlsx", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	if errors.Is(err, export.ErrPublishDisabled) {
		return http.StatusServiceUnavailable, "PUBLISH_UNAVAILABLE", "Export publishing is not configured", nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		return http.StatusBadGateway, "STORE_ERROR", "Settings store unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func retryAfter(err error) string {
	var throttled *authpw.ThrottleError
	if errors.As(err, &throttled) {
		return strconv.Itoa(throttled.Wait)
	}
	return ""
}
