// Package apperror defines the error kinds raised by the persistence core.
//
// Errors carry a stable code plus a Kind. Translating a Kind into a transport
// status is the caller's job (see pkg/controller).
package apperror

import (
	"errors"
	"fmt"
	"sort"
)

// Kind classifies an AppError.
type Kind string

const (
	// KindConfiguration is a fatal setup error detected at initialization.
	KindConfiguration Kind = "configuration"
	// KindBadRequest is a malformed caller input such as a bad filter expression.
	KindBadRequest Kind = "bad_request"
	// KindNotFound reports a missing target entity.
	KindNotFound Kind = "not_found"
	// KindValidation reports a business rule violation.
	KindValidation Kind = "validation"
	// KindInternal is anything else.
	KindInternal Kind = "internal"
)

// Params carries dynamic values used to interpolate a message template.
type Params map[string]interface{}

// AppError is the error contract shared across layers:
// stable code + kind + params + optional wrapped cause.
type AppError struct {
	Code            string
	Kind            Kind
	FallbackMessage string
	Params          Params
	Details         map[string]interface{}
	Cause           error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	label := e.Code
	if e.FallbackMessage != "" {
		label = e.FallbackMessage
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", label, e.Cause)
	}
	return label
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// New creates an AppError with a stable code.
func New(kind Kind, code string, params Params, cause error) *AppError {
	return &AppError{
		Code:   code,
		Kind:   kind,
		Params: cloneParams(params),
		Cause:  cause,
	}
}

// WithMessage sets a non-localized fallback message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}
	e.FallbackMessage = message
	return e
}

// WithDetails sets structured error details.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e == nil {
		return nil
	}
	e.Details = details
	return e
}

// Configuration creates a configuration error.
func Configuration(format string, args ...any) *AppError {
	return New(KindConfiguration, "configuration.invalid", nil, nil).WithMessage(fmt.Sprintf(format, args...))
}

// BadRequest creates a bad-request error with optional cause.
func BadRequest(message string, cause error) *AppError {
	return New(KindBadRequest, "request.invalid", nil, cause).WithMessage(message)
}

// NotFound creates a not-found error.
func NotFound(message string) *AppError {
	return New(KindNotFound, "resource.not_found", nil, nil).WithMessage(message)
}

// Validation creates a validation error.
func Validation(message string, details map[string]interface{}) *AppError {
	return New(KindValidation, "validation.failed", nil, nil).
		WithMessage(message).
		WithDetails(details)
}

// Internal creates an internal error wrapping cause.
func Internal(message string, cause error) *AppError {
	return New(KindInternal, "internal.error", nil, cause).WithMessage(message)
}

// KindOf returns the kind of the first AppError in err's chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries an AppError of the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// CanonicalParams returns a deterministic list of keys.
func CanonicalParams(params Params) []string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func cloneParams(params Params) Params {
	if len(params) == 0 {
		return nil
	}
	out := make(Params, len(params))
	for key, value := range params {
		out[key] = value
	}
	return out
}
