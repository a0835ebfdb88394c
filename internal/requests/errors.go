package requests

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidProvider = errors.New("invalid provider")
	ErrProviderBusy    = errors.New("provider already has an active request")
	ErrInvalidRole     = errors.New("role must be provider or user")
	ErrForbidden       = errors.New("forbidden")
	// ErrInvalidTransition is a confirmation outside its status window. It maps to 409.
	ErrInvalidTransition = errors.New("transition not allowed from current status")
)

// ValidationError reports a malformed or disallowed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InternalError wraps an unexpected persistence or dependency failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *InternalError) Unwrap() error { return e.Err }

func internal(op string, err error) error {
	return &InternalError{Op: op, Err: err}
}

// Code returns the machine-readable error code for err.
func Code(err error) string {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidProvider):
		return "invalid_provider"
	case errors.Is(err, ErrProviderBusy):
		return "provider_busy"
	case errors.Is(err, ErrInvalidRole):
		return "invalid_role"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidTransition):
		return "conflict"
	case errors.As(err, &ve):
		return "validation"
	default:
		return "internal"
	}
}

// StatusCode maps err to the HTTP status returned to the caller.
func StatusCode(err error) int {
	switch Code(err) {
	case "not_found":
		return http.StatusNotFound
	case "invalid_provider", "provider_busy", "invalid_role", "validation":
		return http.StatusBadRequest
	case "forbidden":
		return http.StatusForbidden
	case "conflict":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
