// Package dto defines API request/response types and error handling.
//
// Request types carry path/query/json struct tags for parameter binding and
// implement Validatable. Errors carry an HTTP status, a machine-readable
// ErrorCode and optional details.
package dto

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrorCodeValidationFailed is returned when input data fails validation.
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrorCodeMissingField is returned when a required field is missing.
	ErrorCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrorCodeInvalidFormat is returned when a field has an invalid format.
	ErrorCodeInvalidFormat ErrorCode = "INVALID_FORMAT"

	// ErrorCodeNotFound is returned when a resource is not found.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeStorageError is returned when a storage operation fails.
	ErrorCodeStorageError ErrorCode = "STORAGE_ERROR"
	// ErrorCodeLockTimeout is returned when the store stayed locked too long.
	ErrorCodeLockTimeout ErrorCode = "LOCK_TIMEOUT"

	// ErrorCodeInternal is returned when an unexpected server error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeConflict is returned when there is a resource conflict.
	ErrorCodeConflict ErrorCode = "CONFLICT"
	// ErrorCodeUnauthorized is returned when authentication is missing or invalid.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodePayloadTooLarge is returned when the request body is too big.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrorCodeRateLimitExceeded is returned when a client sends too many requests.
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// ErrorCodeUpstream is returned when TMDB answered with an error.
	ErrorCodeUpstream ErrorCode = "UPSTREAM_ERROR"
	// ErrorCodeUnavailable is returned when an optional feature is not configured.
	ErrorCodeUnavailable ErrorCode = "UNAVAILABLE"
)

// ErrorDetails defines the structured error information in a response.
type ErrorDetails struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// Message returns the message without the wrapped cause.
func (e *APIError) Message() string {
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeNotFound, resource+" not found")
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeMissingField, "Missing required field: "+fieldName).WithDetail("field", fieldName)
}

// InvalidField creates a 400 Bad Request error for a malformed field.
func InvalidField(fieldName, message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidFormat, fieldName+": "+message).WithDetail("field", fieldName)
}

// Conflict creates a 409 Conflict error.
func Conflict(message string) *APIError {
	return NewAPIError(http.StatusConflict, ErrorCodeConflict, message)
}

// Unauthorized returns a 401 Unauthorized error.
func Unauthorized(message string) *APIError {
	if message == "" {
		message = "Unauthorized"
	}
	return NewAPIError(http.StatusUnauthorized, ErrorCodeUnauthorized, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeInternal, message).Wrap(err)
}

// Storage creates a 500 error for a failed write to the store.
func Storage(err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeStorageError, "Failed to save changes").Wrap(err)
}

// LockTimeout creates a 503 error when the store is busy.
func LockTimeout(err error) *APIError {
	return NewAPIError(http.StatusServiceUnavailable, ErrorCodeLockTimeout, "Store is busy, try again").Wrap(err)
}

// Unavailable creates a 503 error for a feature that is not configured.
func Unavailable(feature string) *APIError {
	return NewAPIError(http.StatusServiceUnavailable, ErrorCodeUnavailable, feature+" is not configured")
}

// Upstream creates an error mirroring an upstream HTTP failure.
func Upstream(statusCode int, err error) *APIError {
	if statusCode < 400 || statusCode > 599 {
		statusCode = http.StatusBadGateway
	}
	return NewAPIError(statusCode, ErrorCodeUpstream, "TMDB request failed").Wrap(err)
}

// PayloadTooLarge creates a 413 error.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge, "Request body too large").WithDetail("limit", limit)
}

// RateLimitExceeded creates a 429 error.
func RateLimitExceeded(retryAfter int) *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrorCodeRateLimitExceeded, "Too many requests, retry in "+strconv.Itoa(retryAfter)+"s").WithDetail("retry_after", retryAfter)
}

// ToResponse returns the status and body describing err. Errors that are not
// an ErrorWithStatus become a generic 500 so internal details don't leak.
// Wrapped causes are never included in the message.
func ToResponse(err error) (int, ErrorResponse) {
	var ews ErrorWithStatus
	if !errors.As(err, &ews) {
		return http.StatusInternalServerError, ErrorResponse{Error: ErrorDetails{Code: ErrorCodeInternal, Message: "Internal error"}}
	}
	msg := ews.Error()
	if m, ok := ews.(interface{ Message() string }); ok {
		msg = m.Message()
	}
	return ews.StatusCode(), ErrorResponse{
		Error:   ErrorDetails{Code: ews.Code(), Message: msg},
		Details: ews.Details(),
	}
}
