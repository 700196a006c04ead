// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrorResponse represents the standard error response format across all APIs
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorCode represents standard error codes used across the system
type ErrorCode string

const (
	// Client errors (4xx)
	ErrorCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrorCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrorCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrorCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"

	// Server errors (5xx)
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeTimeout            ErrorCode = "TIMEOUT"
	ErrorCodeDependencyFailure  ErrorCode = "DEPENDENCY_FAILURE"
)

// ServiceError represents an error with additional context for proper handling
type ServiceError struct {
	Message    string
	Code       ErrorCode
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Internal
}

// ToErrorResponse converts a ServiceError to an ErrorResponse
func (e *ServiceError) ToErrorResponse(requestID string) ErrorResponse {
	return ErrorResponse{
		Error:     e.Message,
		Code:      string(e.Code),
		RequestID: requestID,
		Timestamp: time.Now(),
	}
}

// NewServiceError creates a new ServiceError with the given parameters
func NewServiceError(message string, code ErrorCode, statusCode int, internal error) *ServiceError {
	return &ServiceError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// NewBadRequestError creates an input error, surfaced as 400
func NewBadRequestError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeBadRequest, http.StatusBadRequest, internal)
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeInternalError, http.StatusInternalServerError, internal)
}

// NewServiceUnavailableError creates a new service unavailable error
func NewServiceUnavailableError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeServiceUnavailable, http.StatusServiceUnavailable, internal)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeTimeout, http.StatusRequestTimeout, internal)
}

// NewDependencyFailureError creates a new dependency failure error
func NewDependencyFailureError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeDependencyFailure, http.StatusBadGateway, internal)
}

// NewTooManyRequestsError creates a new too many requests error
func NewTooManyRequestsError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeTooManyRequests, http.StatusTooManyRequests, internal)
}

// IsInputError reports whether err is a caller mistake (400)
func IsInputError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Code == ErrorCodeBadRequest
}

// UpstreamError is a failure reported by, or while talking to, an external service.
// Transient errors (rate limiting, timeouts, 5xx, transport) may be retried;
// fatal ones (authentication, malformed request) must not be.
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	Transient  bool
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Service, kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Service, kind, e.Message)
}

// Unwrap returns the underlying error
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewUpstreamStatusError classifies an HTTP status returned by service
func NewUpstreamStatusError(service string, statusCode int, message string, retryAfter time.Duration) *UpstreamError {
	return &UpstreamError{
		Service:    service,
		StatusCode: statusCode,
		Message:    message,
		Transient:  IsTransientStatus(statusCode),
		RetryAfter: retryAfter,
	}
}

// NewUpstreamTransportError wraps a transport-level failure; these are transient
// unless the caller's context was cancelled
func NewUpstreamTransportError(service string, err error) *UpstreamError {
	return &UpstreamError{
		Service:   service,
		Message:   err.Error(),
		Transient: !errors.Is(err, context.Canceled),
		Err:       err,
	}
}

// IsTransientStatus reports whether an HTTP status is worth retrying
func IsTransientStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err may succeed on retry
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RetryAfterHint returns the server-suggested delay carried by err, if any
func RetryAfterHint(err error) time.Duration {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.RetryAfter
	}
	return 0
}

// ErrorHandler provides utilities for handling and formatting errors
type ErrorHandler struct {
	logger *zap.Logger
}

// NewErrorHandler creates a new error handler with the given logger
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorHandler{logger: logger}
}

// WrapError converts any error into a ServiceError with a user-facing message
func (eh *ErrorHandler) WrapError(err error, operation string) *ServiceError {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	var wrapped *ServiceError
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrCircuitBreakerOpen):
		wrapped = NewServiceUnavailableError(
			fmt.Sprintf("The %s dependency is temporarily unavailable. Please try again in a few minutes.", operation), err)
	case errors.Is(err, context.DeadlineExceeded):
		wrapped = NewTimeoutError("The operation is taking longer than expected. Please try again.", err)
	case errors.As(err, &upstream) && upstream.StatusCode == http.StatusTooManyRequests:
		wrapped = NewTooManyRequestsError("Too many requests. Please wait a moment and try again.", err)
	case errors.As(err, &upstream):
		// upstream.Message may echo the response body; it stays in the log only
		message := fmt.Sprintf("%s request failed", upstream.Service)
		if upstream.StatusCode > 0 {
			message = fmt.Sprintf("%s (status %d)", message, upstream.StatusCode)
		}
		wrapped = NewDependencyFailureError(message, err)
	default:
		wrapped = NewInternalError(fmt.Sprintf("An error occurred while %s. Please try again.", operation), err)
	}

	eh.logger.Error("Error occurred during operation",
		zap.String("operation", operation),
		zap.Error(err),
		zap.String("user_message", wrapped.Message),
		zap.String("error_code", string(wrapped.Code)))

	return wrapped
}

// WriteErrorResponse writes an error response to an HTTP response writer
func (eh *ErrorHandler) WriteErrorResponse(w http.ResponseWriter, err error, requestID string) {
	serviceErr := eh.WrapError(err, "processing request")
	if serviceErr == nil {
		serviceErr = NewInternalError("An error occurred while processing request", nil)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serviceErr.StatusCode)

	response := serviceErr.ToErrorResponse(requestID)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		eh.logger.Error("Failed to encode error response", zap.Error(err))
	}
}
