// Package handlers holds the small non-WebDAV endpoints and the shared error
// rendering used by the middleware chain.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ebogdum/davgate/auth"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes rendered in ErrorResponse.Code.
const (
	CodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	CodePermissionDenied       = "PERMISSION_DENIED"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeInternalError          = "INTERNAL_ERROR"
)

// SendErrorResponse writes a JSON error body. Internal errors never expose
// their cause to the client; it goes to the log instead.
func SendErrorResponse(w http.ResponseWriter, logger *zap.Logger, err error, statusCode int) {
	var code, message string
	switch {
	case statusCode == http.StatusUnauthorized || errors.Is(err, auth.ErrAuthenticationFailed):
		statusCode = http.StatusUnauthorized
		code, message = CodeAuthenticationRequired, "authentication required"
	case statusCode == http.StatusForbidden || errors.Is(err, auth.ErrPermissionDenied):
		statusCode = http.StatusForbidden
		code, message = CodePermissionDenied, "permission denied"
	case statusCode == http.StatusTooManyRequests:
		code, message = CodeRateLimitExceeded, "rate limit exceeded"
	default:
		statusCode = http.StatusInternalServerError
		code, message = CodeInternalError, "internal server error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if encErr := json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: message}); encErr != nil {
		logger.Error("Failed to encode error response", zap.Error(encErr))
	}

	if statusCode >= http.StatusInternalServerError {
		logger.Error("Error response sent",
			zap.String("error_code", code), zap.Int("status_code", statusCode), zap.Error(err))
		return
	}
	logger.Debug("Error response sent",
		zap.String("error_code", code), zap.Int("status_code", statusCode), zap.Error(err))
}
