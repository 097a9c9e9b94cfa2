package shared

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")
	ErrConfig        = fmt.Errorf("configuration error")

	// Admission errors, surfaced synchronously from task submission
	ErrUnauthorized  = fmt.Errorf("unauthorized")
	ErrForbidden     = fmt.Errorf("forbidden")
	ErrQuotaExceeded = fmt.Errorf("daily quota exceeded")
	ErrValidation    = fmt.Errorf("validation failed")
	ErrNotFound      = fmt.Errorf("not found")
	ErrRateLimited   = fmt.Errorf("too many requests")

	// Provider and infrastructure errors, recorded on the task
	ErrProvider           = fmt.Errorf("render provider failed")
	ErrProviderTimeout    = fmt.Errorf("render provider timed out")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrInternal           = fmt.Errorf("internal error")
)

// codeTable maps sentinel errors to their stable wire codes and HTTP statuses.
// Codes are part of the external contract and must not change between versions.
// Order matters: ErrProviderTimeout wraps before ErrProvider is consulted.
var codeTable = []struct {
	err    error
	code   string
	status int
}{
	{ErrUnauthorized, "E_AUTH", http.StatusUnauthorized},
	{ErrForbidden, "E_FORBIDDEN", http.StatusForbidden},
	{ErrQuotaExceeded, "E_QUOTA", http.StatusTooManyRequests},
	{ErrValidation, "E_VALIDATION", http.StatusBadRequest},
	{ErrNotFound, "E_NOT_FOUND", http.StatusNotFound},
	{ErrRateLimited, "E_RATE_LIMIT", http.StatusTooManyRequests},
	{ErrConfig, "E_CONFIG", http.StatusBadRequest},
	{ErrProviderTimeout, "E_PROVIDER_TIMEOUT", http.StatusGatewayTimeout},
	{ErrProvider, "E_PROVIDER", http.StatusBadGateway},
	{ErrServiceUnavailable, "E_UNAVAILABLE", http.StatusServiceUnavailable},
	{ErrInvalidConfig, "E_CONFIG", http.StatusBadRequest},
	{ErrMissingConfig, "E_CONFIG", http.StatusBadRequest},
}

// CodeFor returns the stable error code for err, falling back to E_INTERNAL.
func CodeFor(err error) string {
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "E_INTERNAL"
}

// StatusFor returns the HTTP status code for err, falling back to 500.
func StatusFor(err error) int {
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}
