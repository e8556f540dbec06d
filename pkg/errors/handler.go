package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse represents the API error response format
type ErrorResponse struct {
	Error     bool                   `json:"error"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ErrorHandler handles errors and sends appropriate HTTP responses
type ErrorHandler struct {
	logger        *zap.Logger
	debug         bool
	defaultStatus int
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger, debug bool) *ErrorHandler {
	return &ErrorHandler{
		logger:        logger,
		debug:         debug,
		defaultStatus: http.StatusInternalServerError,
	}
}

// Handle processes an error and sends an HTTP response
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	requestID := r.Header.Get("X-Request-ID")

	var status int
	var response ErrorResponse

	switch {
	case GetDomainError(err) != nil:
		domainErr := GetDomainError(err)
		status = domainErr.StatusCode
		if status < 400 {
			// Advisories are never failures; reaching here means a caller
			// returned one as an error by mistake
			status = http.StatusOK
		}
		response = ErrorResponse{
			Error:     true,
			Type:      string(domainErr.Type),
			Message:   domainErr.Message,
			Code:      domainErr.Code,
			Details:   domainErr.Details,
			Retryable: domainErr.Retryable,
			RequestID: requestID,
		}
		h.log(r, status, domainErr.Message, zap.String("error_code", domainErr.Code), zap.Error(err))

	case GetAppError(err) != nil:
		appErr := GetAppError(err)
		status = appErr.HTTPStatus
		if status == 0 {
			status = h.defaultStatus
		}
		response = ErrorResponse{
			Error:     true,
			Type:      string(appErr.Type),
			Message:   appErr.Message,
			Code:      appErr.Code,
			Details:   appErr.Details,
			RequestID: requestID,
		}
		if h.debug && appErr.StackTrace != "" {
			if response.Details == nil {
				response.Details = make(map[string]interface{})
			}
			response.Details["stack_trace"] = appErr.StackTrace
		}
		fields := []zap.Field{zap.String("error_type", string(appErr.Type))}
		if appErr.Cause != nil {
			fields = append(fields, zap.Error(appErr.Cause))
		}
		h.log(r, status, appErr.Message, fields...)

	default:
		if ve, ok := err.(*ValidationErrors); ok {
			status = http.StatusBadRequest
			response = ErrorResponse{
				Error:     true,
				Type:      string(ErrorTypeValidation),
				Message:   ve.Error(),
				Details:   map[string]interface{}{"fields": ve.ToMap()},
				RequestID: requestID,
			}
			h.log(r, status, ve.Error())
			break
		}

		status = h.defaultStatus
		response = ErrorResponse{
			Error:     true,
			Type:      string(ErrorTypeInternal),
			Message:   "An internal error occurred",
			RequestID: requestID,
		}
		if h.debug {
			response.Message = err.Error()
		}
		h.log(r, status, "Unhandled error", zap.Error(err))
	}

	h.sendJSON(w, status, response)
}

// HandleStatus sends an error response with a specific status code
func (h *ErrorHandler) HandleStatus(w http.ResponseWriter, r *http.Request, status int, message string) {
	response := ErrorResponse{
		Error:     true,
		Type:      statusToErrorType(status),
		Message:   message,
		RequestID: r.Header.Get("X-Request-ID"),
	}

	h.log(r, status, message)
	h.sendJSON(w, status, response)
}

// log writes the error with a level chosen by status
func (h *ErrorHandler) log(r *http.Request, status int, message string, extra ...zap.Field) {
	fields := append([]zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", r.Header.Get("X-Request-ID")),
	}, extra...)

	switch {
	case status >= 500:
		h.logger.Error(message, fields...)
	case status >= 400:
		h.logger.Warn(message, fields...)
	default:
		h.logger.Info(message, fields...)
	}
}

// sendJSON sends a JSON response
func (h *ErrorHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}

// statusToErrorType maps HTTP status to error type
func statusToErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(ErrorTypeValidation)
	case http.StatusNotFound:
		return string(ErrorTypeNotFound)
	case http.StatusConflict:
		return string(ErrorTypeConflict)
	case http.StatusGatewayTimeout:
		return string(ErrorTypeTimeout)
	case http.StatusTooManyRequests:
		return string(ErrorTypeRateLimit)
	case http.StatusServiceUnavailable:
		return string(ErrorTypeUnavailable)
	case http.StatusBadGateway:
		return string(ErrorTypeExternal)
	default:
		return string(ErrorTypeInternal)
	}
}

// Middleware returns an HTTP middleware that turns panics into error responses
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.Handle(w, r, NewInternalError(fmt.Sprintf("panic: %v", rec)))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
