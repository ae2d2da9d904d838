package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"
)

// ErrorType classifies a failure so callers can decide between retry, abort and partial success.
type ErrorType string

const (
	// Caller errors
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeRateLimit    ErrorType = "RATE_LIMIT"

	// Collaborator errors
	ErrorTypeUpstream    ErrorType = "UPSTREAM_PROVIDER"
	ErrorTypePersistence ErrorType = "PERSISTENCE"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"

	// Ingestion outcome where the primary chunk landed but some secondary chunks did not
	ErrorTypePartialIngestion ErrorType = "PARTIAL_INGESTION"

	ErrorTypeInternal ErrorType = "INTERNAL"
)

// AppError is the error value carried across every layer of the service.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails merges details into the error
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// Retryable reports whether repeating the same call could succeed.
func (e *AppError) Retryable() bool {
	switch e.Type {
	case ErrorTypeUpstream, ErrorTypeUnavailable, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

func captureStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&sb, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return sb.String()
}

func newError(t ErrorType, status int, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		HTTPStatus: status,
		StackTrace: captureStackTrace(),
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource))
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return newError(ErrorTypeUnauthorized, http.StatusUnauthorized, message)
}

// NewForbiddenError creates a permission error
func NewForbiddenError(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return newError(ErrorTypeForbidden, http.StatusForbidden, message)
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit int, window string) *AppError {
	return newError(ErrorTypeRateLimit, http.StatusTooManyRequests,
		fmt.Sprintf("rate limit exceeded: %d requests per %s", limit, window))
}

// NewUpstreamError creates an error for a failed call to an external provider such as the embedding API.
func NewUpstreamError(service string, err error) *AppError {
	e := newError(ErrorTypeUpstream, http.StatusBadGateway, fmt.Sprintf("upstream provider '%s' failed", service))
	e.Cause = err
	return e
}

// NewPersistenceError creates an error for a failed durable store operation.
func NewPersistenceError(operation string, err error) *AppError {
	e := newError(ErrorTypePersistence, http.StatusInternalServerError, fmt.Sprintf("persistence operation '%s' failed", operation))
	e.Cause = err
	return e
}

// NewUnavailableError creates a service unavailable error
func NewUnavailableError(service string) *AppError {
	return newError(ErrorTypeUnavailable, http.StatusServiceUnavailable, fmt.Sprintf("service '%s' is unavailable", service))
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message)
}

// ChunkFailure records why one secondary chunk could not be ingested.
type ChunkFailure struct {
	Index int
	Err   error
}

// NewPartialIngestionError folds secondary chunk failures into one error. The primary memory exists.
func NewPartialIngestionError(primaryID string, totalChunks int, failures []ChunkFailure) *AppError {
	sorted := make([]ChunkFailure, len(failures))
	copy(sorted, failures)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	indexes := make([]int, 0, len(sorted))
	kinds := make(map[string]string, len(sorted))
	for _, f := range sorted {
		indexes = append(indexes, f.Index)
		kind := string(ErrorTypeInternal)
		if appErr := GetAppError(f.Err); appErr != nil {
			kind = string(appErr.Type)
		}
		kinds[fmt.Sprintf("%d", f.Index)] = kind
	}

	e := newError(ErrorTypePartialIngestion, http.StatusMultiStatus,
		fmt.Sprintf("%d of %d chunks failed to ingest", len(sorted), totalChunks))
	e.Details = map[string]interface{}{
		"primary_id":    primaryID,
		"total_chunks":  totalChunks,
		"failed_chunks": indexes,
		"failure_kinds": kinds,
	}
	if len(sorted) > 0 {
		e.Cause = sorted[0].Err
	}
	return e
}

// FailedChunks returns the failed chunk indexes of a partial ingestion error.
func FailedChunks(err error) []int {
	appErr := GetAppError(err)
	if appErr == nil || appErr.Type != ErrorTypePartialIngestion {
		return nil
	}
	indexes, _ := appErr.Details["failed_chunks"].([]int)
	return indexes
}

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsForbidden checks if an error is a permission error
func IsForbidden(err error) bool {
	return IsType(err, ErrorTypeForbidden)
}

// IsPartialIngestion checks if an error reports a partially ingested document
func IsPartialIngestion(err error) bool {
	return IsType(err, ErrorTypePartialIngestion)
}

// IsRetryable reports whether err is worth retrying. Unknown errors are not.
func IsRetryable(err error) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Retryable()
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
