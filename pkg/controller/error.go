// Package controller holds the caller-side helpers a transport layer uses
// around persistence.Operations: error to status mapping, write outcome
// status and request parameter parsing.
package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/nimburion/entitykit/pkg/apperror"
)

// ErrorResponse represents the consistent error response format.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code,omitempty"`
	Message   string                 `json:"message,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

type requestIDKey struct{}

// WithRequestID stores the request id echoed in error responses.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func getRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// StatusForKind returns the HTTP status for an error kind.
func StatusForKind(kind apperror.Kind) int {
	switch kind {
	case apperror.KindBadRequest:
		return http.StatusBadRequest
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// MapError maps persistence errors to HTTP responses. Errors that are not
// an *apperror.AppError, and configuration errors, are reported as internal
// without leaking their message.
func MapError(ctx context.Context, err error) (int, ErrorResponse) {
	requestID := getRequestID(ctx)

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Kind == apperror.KindConfiguration || appErr.Kind == apperror.KindInternal {
		return http.StatusInternalServerError, ErrorResponse{
			Error:     "internal_server_error",
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		}
	}

	status := StatusForKind(appErr.Kind)
	message := appErr.FallbackMessage
	if message == "" {
		message = appErr.Code
	}
	return status, ErrorResponse{
		Error:     errorCategory(status),
		Code:      appErr.Code,
		Message:   message,
		RequestID: requestID,
		Details:   appErr.Details,
	}
}

func errorCategory(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_error"
	default:
		return "internal_server_error"
	}
}
