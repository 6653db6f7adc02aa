package errors

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// ValidationError represents a single field validation failure
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

// Predefined error types for common scenarios
var (
	// 400 Bad Request
	ErrInvalidRequest = New(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")

	// 404 Not Found
	ErrNotFound = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")

	// 409 Conflict
	ErrConflict = New(http.StatusConflict, "CONFLICT", "Resource conflict")

	// 429 Too Many Requests
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")

	// 500 Internal Server Error
	ErrInternalServer = New(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")

	// 502 Bad Gateway
	ErrDeviceUnreachable = New(http.StatusBadGateway, "DEVICE_UNREACHABLE", "Enforcement device unreachable")
)

// Helper constructors for the voucher domain

// InvalidRequestWithError creates an invalid request error with details
func InvalidRequestWithError(err error) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err.Error())
}

// ErrValidation creates a validation error with field details
func ErrValidation(field, message string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", ValidationError{
		Field:   field,
		Message: message,
	})
}

// NewValidationErrors creates a validation error from multiple fields
func NewValidationErrors(errs []ValidationError) *APIError {
	return NewWithDetails(http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", errs)
}

// NotFoundError creates a not found error with details
func NotFoundError(resource string) *APIError {
	return NewWithDetails(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource), resource)
}

// InvalidProfileError creates an error for a batch request referencing an
// unknown profile.
func InvalidProfileError(name string) *APIError {
	return NewWithDetails(http.StatusBadRequest, "INVALID_PROFILE", fmt.Sprintf("profile %q does not exist", name), name)
}

// DuplicateProfileError creates an error for a conflicting profile name.
func DuplicateProfileError(name string) *APIError {
	return NewWithDetails(http.StatusConflict, "DUPLICATE_PROFILE_NAME", fmt.Sprintf("profile %q already exists", name), name)
}

// ProfileInUseError creates an error for deleting a referenced profile.
func ProfileInUseError(name string, vouchers int64) *APIError {
	return NewWithDetails(http.StatusConflict, "PROFILE_IN_USE",
		fmt.Sprintf("profile %q is referenced by %d voucher(s)", name, vouchers),
		map[string]interface{}{"profile": name, "vouchers": vouchers})
}

// GenerationExhaustedError creates an error for a batch that ran out of its
// uniqueness retry budget. Attempted/succeeded counts let the caller decide
// between a smaller batch and a different prefix.
func GenerationExhaustedError(attempted, succeeded int) *APIError {
	return NewWithDetails(http.StatusConflict, "GENERATION_EXHAUSTED",
		"code generation retry budget exceeded",
		map[string]int{"attempted": attempted, "succeeded": succeeded})
}

// DeviceUnreachableError creates an error for a failed remote device call.
// The cause is surfaced verbatim; retry is the operator's decision.
func DeviceUnreachableError(err error) *APIError {
	return NewWithDetails(http.StatusBadGateway, "DEVICE_UNREACHABLE", "Enforcement device unreachable", err.Error())
}

// TemplateConflictError creates an error for a stale template save.
func TemplateConflictError(expected, got int64) *APIError {
	return NewWithDetails(http.StatusConflict, "TEMPLATE_VERSION_CONFLICT",
		"template was modified by another save",
		map[string]int64{"stored_version": expected, "request_version": got})
}

// ErrorResponse represents a standard error response envelope
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error"`
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err *APIError) *ErrorResponse {
	return &ErrorResponse{Success: false, Error: err}
}

// Render implements the render.Renderer interface
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	return e.Error.Render(w, r)
}
