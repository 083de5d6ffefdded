package mfasdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/phimfa/pkg/httpx"
)

// Error codes returned in the "error" field.
const (
	ErrorCodeInvalidRequest    = "invalid_request"
	ErrorCodeInvalidToken      = "invalid_token"
	ErrorCodeInsufficientScope = "insufficient_scope"
	ErrorCodeServerError       = "server_error"

	ErrorCodeNotEnrolled            = "not_enrolled"
	ErrorCodeTemporarilyDisabled    = "temporarily_disabled"
	ErrorCodeRateLimited            = "rate_limited"
	ErrorCodeInvalidCode            = "invalid_code"
	ErrorCodeConfigurationInvalid   = "configuration_invalid"
	ErrorCodePersistenceUnavailable = "persistence_unavailable"
	ErrorCodeAlreadyEnrolled        = "already_enrolled"
	ErrorCodeSessionNotFound        = "session_not_found"
)

// ErrorResponse is the JSON error body. Verification failures add the
// attempt counters.
type ErrorResponse struct {
	Error             string `json:"error"`
	ErrorDescription  string `json:"error_description,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode  int
	Code        string
	Description string

	// RemainingAttempts is set on verification failures.
	RemainingAttempts *int
	// RetryAfterSeconds is set when rate limited.
	RetryAfterSeconds int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// RetryAfter returns the rate-limit delay as a duration.
func (e *APIError) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterSeconds) * time.Second
}

// WithAttempts returns a copy of e carrying the attempt counters.
func (e *APIError) WithAttempts(remaining int, retryAfter time.Duration) *APIError {
	cp := *e
	cp.RemainingAttempts = &remaining
	if retryAfter > 0 {
		// round up so clients never retry early
		cp.RetryAfterSeconds = int((retryAfter + time.Second - 1) / time.Second)
	}
	return &cp
}

// WithDescription returns a copy of e with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	cp := *e
	cp.Description = desc
	return &cp
}

// WriteError writes e as a JSON response. Rate-limited errors also set
// the Retry-After header.
func (e *APIError) WriteError(w http.ResponseWriter) {
	if e.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfterSeconds))
	}
	httpx.WriteJSON(w, e.StatusCode, ErrorResponse{
		Error:             e.Code,
		ErrorDescription:  e.Description,
		RemainingAttempts: e.RemainingAttempts,
		RetryAfterSeconds: e.RetryAfterSeconds,
	})
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	ErrNotEnrolled = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotEnrolled,
		Description: "MFA is not enrolled for this identity",
	}

	ErrTemporarilyDisabled = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeTemporarilyDisabled,
		Description: "MFA is temporarily disabled for this identity",
	}

	ErrRateLimited = &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeRateLimited,
		Description: "too many failed attempts",
	}

	ErrInvalidCode = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidCode,
		Description: "the code is invalid",
	}

	// ErrConfigurationInvalid means the enrollment was unusable and has been
	// cleared. The caller must run setup again.
	ErrConfigurationInvalid = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeConfigurationInvalid,
		Description: "MFA configuration invalid, re-setup required",
	}

	ErrPersistenceUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodePersistenceUnavailable,
		Description: "storage is temporarily unavailable, retry later",
	}

	ErrAlreadyEnrolled = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeAlreadyEnrolled,
		Description: "MFA is already enrolled, remove it before setting up again",
	}

	ErrSessionNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeSessionNotFound,
		Description: "no live MFA session",
	}
)

// parseErrorResponse converts a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:        resp.StatusCode,
			Code:              errResp.Error,
			Description:       errResp.ErrorDescription,
			RemainingAttempts: errResp.RemainingAttempts,
			RetryAfterSeconds: errResp.RetryAfterSeconds,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
