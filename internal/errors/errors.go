package errors

import (
	"errors"
	"fmt"
)

// Session lifecycle error kinds
var (
	// ErrInvalidCredentials is returned when the backend rejects a login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotAuthenticated is returned when an operation needs a token and none is stored.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrUnauthorized is returned when the backend rejects a stored token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRefreshFailed is returned when the refresh exchange fails. It is always
	// terminal for the current session.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrImpersonationDenied is returned when the backend refuses an impersonation.
	ErrImpersonationDenied = errors.New("impersonation denied")
	// ErrInvalidRequest is returned when a request fails local validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// BackendError is a non-2xx answer from the identity backend. Message is the
// backend-supplied text, or a fallback when the backend sent none.
type BackendError struct {
	Kind    error
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *BackendError) Unwrap() error {
	return e.Kind
}

// NewBackendError builds a BackendError, falling back to fallback when message is empty.
func NewBackendError(kind error, status int, message, fallback string) *BackendError {
	if message == "" {
		message = fallback
	}
	return &BackendError{Kind: kind, Status: status, Message: message}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
