// Package apperr holds the error taxonomy shared by the console components and
// the conversion of any error into the message shown to the operator.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated is returned when no session or token is available.
	ErrUnauthenticated = errors.New("User not authenticated")
	// ErrTimeout is returned when a pending enrollment exceeds its allowed duration.
	ErrTimeout = errors.New("timed out waiting for enrollment to complete")
)

// ValidationError reports missing or invalid operator input, caught before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("API error: %d", e.Status)
	}
	return e.Detail
}

// NetworkError means the request never reached the server.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Message converts err into the text displayed to the operator.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	var aerr *APIError
	var nerr *NetworkError
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.As(err, &aerr):
		return aerr.Error()
	case errors.As(err, &nerr):
		return nerr.Error()
	case errors.Is(err, ErrTimeout):
		return ErrTimeout.Error()
	case errors.Is(err, ErrUnauthenticated):
		return ErrUnauthenticated.Error()
	}
	return err.Error()
}

// HTTPStatus picks the status code the console answers with for err.
func HTTPStatus(err error) int {
	var verr *ValidationError
	var aerr *APIError
	var nerr *NetworkError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &aerr):
		if aerr.Status >= 400 && aerr.Status < 500 {
			return aerr.Status
		}
		return http.StatusBadGateway
	case errors.As(err, &nerr):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
