package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the engagement core. Services return these (possibly
// wrapped); the HTTP adapter maps them to status codes and never exposes
// store internals to the client.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidParent      = errors.New("invalid parent")
	ErrDepthExceeded      = errors.New("reply depth exceeded")
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyDeleted     = errors.New("already deleted")
	ErrConflict           = errors.New("conflict")
	ErrStoreTimeout       = errors.New("store timeout")
	ErrStoreUnavailable   = errors.New("store unavailable")
	ErrInvalidPageRequest = errors.New("invalid page request")
)

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Is reports whether err is an instance of custom error type T.
func Is[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// Message is the client-safe description of an error. Internal detail from
// the store layer never leaves through here.
func Message(err error) string {
	for _, sentinel := range []error{
		ErrNotFound, ErrForbidden, ErrInvalidParent, ErrDepthExceeded,
		ErrInvalidInput, ErrAlreadyDeleted, ErrConflict,
		ErrStoreTimeout, ErrStoreUnavailable, ErrInvalidPageRequest,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

// HTTPStatus maps an error to the status code the adapter should answer with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAlreadyDeleted):
		return http.StatusGone
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidParent),
		errors.Is(err, ErrDepthExceeded),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidPageRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreTimeout), errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
