package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Clients are told to back off this long after a throttled or unavailable response.
const (
	RateLimitRetryAfter   = time.Minute
	UnavailableRetryAfter = 30 * time.Second
)

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Error     bool                   `json:"error"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// ErrorHandler turns errors returned by handlers into JSON responses.
// Errors that are not AppErrors are reported as INTERNAL and their text is hidden outside debug mode.
type ErrorHandler struct {
	logger *zap.Logger
	debug  bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger, debug bool) *ErrorHandler {
	return &ErrorHandler{logger: logger, debug: debug}
}

// Handle writes the response for err. A nil err writes nothing.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	appErr := GetAppError(err)
	if appErr == nil {
		appErr = NewInternalError("An internal error occurred").WithCause(err)
		if h.debug {
			appErr.Message = err.Error()
		}
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	resp := ErrorResponse{
		Error:     true,
		Type:      string(appErr.Type),
		Message:   appErr.Message,
		Code:      appErr.Code,
		Details:   appErr.Details,
		RequestID: requestIDFrom(r),
		TraceID:   r.Header.Get("X-Amzn-Trace-Id"),
	}
	if h.debug && appErr.StackTrace != "" {
		details := make(map[string]interface{}, len(resp.Details)+1)
		for k, v := range resp.Details {
			details[k] = v
		}
		details["stack_trace"] = appErr.StackTrace
		resp.Details = details
	}

	h.log(r, appErr, status, resp)
	if wait := retryAfter(appErr.Type); wait > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err), zap.String("requestID", resp.RequestID))
	}
}

func (h *ErrorHandler) log(r *http.Request, appErr *AppError, status int, resp ErrorResponse) {
	fields := []zap.Field{
		zap.String("errorType", resp.Type),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("requestID", resp.RequestID),
	}
	if resp.TraceID != "" {
		fields = append(fields, zap.String("traceID", resp.TraceID))
	}
	if appErr.Code != "" {
		fields = append(fields, zap.String("errorCode", appErr.Code))
	}
	if appErr.Cause != nil {
		fields = append(fields, zap.Error(appErr.Cause))
	}
	if len(appErr.Details) > 0 {
		fields = append(fields, zap.Any("details", appErr.Details))
	}

	// Partial ingestion is a degraded success; the caller still gets the primary id.
	switch {
	case status >= 500:
		h.logger.Error(appErr.Message, fields...)
	case status >= 400, appErr.Type == ErrorTypePartialIngestion:
		h.logger.Warn(appErr.Message, fields...)
	default:
		h.logger.Info(appErr.Message, fields...)
	}
}

func retryAfter(t ErrorType) time.Duration {
	switch t {
	case ErrorTypeRateLimit:
		return RateLimitRetryAfter
	case ErrorTypeUnavailable:
		return UnavailableRetryAfter
	default:
		return 0
	}
}

// Middleware recovers handler panics into INTERNAL responses.
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.logger.Error("Recovered from panic",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
				zap.Stack("stack"),
			)
			h.Handle(w, r, NewInternalError(fmt.Sprintf("panic: %v", rec)))
		}()

		next.ServeHTTP(w, r)
	})
}

// requestIDFrom prefers the id set by chi's RequestID middleware over the inbound header.
func requestIDFrom(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}
