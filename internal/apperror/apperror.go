// Package apperror defines the typed errors raised by the service layer and
// their mapping onto HTTP status codes.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorizes an application error.
type ErrorType int

const (
	// InternalError is for unexpected failures (database, hashing, signing).
	InternalError ErrorType = iota
	// ValidationError is for missing or malformed input.
	ValidationError
	// DuplicateKeyError is raised when a unique identity field already exists.
	DuplicateKeyError
	// InvalidCredentialsError is returned by login for both unknown users and wrong passwords.
	InvalidCredentialsError
	// UnauthorizedError is for a missing or invalid bearer token.
	UnauthorizedError
	// InvalidOrExpiredTokenError is for unknown, used, or expired reset tokens.
	InvalidOrExpiredTokenError
	// NotFoundError is for records that do not exist.
	NotFoundError
	// ExternalServiceError is for failures of upstream providers.
	ExternalServiceError
)

// AppError is the error type shared by services and handlers.
type AppError struct {
	Type    ErrorType
	Message string
	// Redirect is an optional client hint, e.g. "signup".
	Redirect string
	Err      error
}

// Error returns the message, followed by the wrapped cause if any.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code for the error type.
func (e *AppError) StatusCode() int {
	switch e.Type {
	case ValidationError, DuplicateKeyError, InvalidOrExpiredTokenError:
		return http.StatusBadRequest
	case InvalidCredentialsError, UnauthorizedError:
		return http.StatusUnauthorized
	case NotFoundError:
		return http.StatusNotFound
	case ExternalServiceError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body written for every failed request.
type ErrorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

// ToResponse converts the error to its client-facing body. Internal causes are
// never included.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Redirect: e.Redirect}
}

// New creates an AppError of the given type.
func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{Type: errType, Message: message, Err: err}
}

func NewInternal(message string, err error) *AppError {
	return New(InternalError, message, err)
}

func NewValidation(message string) *AppError {
	return New(ValidationError, message, nil)
}

func NewDuplicateKey(message string, err error) *AppError {
	return New(DuplicateKeyError, message, err)
}

func NewInvalidCredentials() *AppError {
	return New(InvalidCredentialsError, "Invalid credentials", nil)
}

func NewUnauthorized(message string, err error) *AppError {
	return New(UnauthorizedError, message, err)
}

func NewInvalidOrExpiredToken() *AppError {
	return New(InvalidOrExpiredTokenError, "Invalid or expired reset token", nil)
}

func NewNotFound(message string) *AppError {
	return New(NotFoundError, message, nil)
}

func NewExternalService(message string, err error) *AppError {
	return New(ExternalServiceError, message, err)
}

// WithRedirect sets a client redirect hint and returns the same error.
func (e *AppError) WithRedirect(target string) *AppError {
	e.Redirect = target
	return e
}

// From converts any error into an *AppError. Errors that are not already
// application errors become InternalError.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternal("Internal server error", err)
}

func is(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool { return is(err, NotFoundError) }

// IsDuplicateKey reports whether err is a DuplicateKeyError.
func IsDuplicateKey(err error) bool { return is(err, DuplicateKeyError) }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool { return is(err, ValidationError) }

// IsInvalidCredentials reports whether err is an InvalidCredentialsError.
func IsInvalidCredentials(err error) bool { return is(err, InvalidCredentialsError) }

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool { return is(err, UnauthorizedError) }

// IsInvalidOrExpiredToken reports whether err is an InvalidOrExpiredTokenError.
func IsInvalidOrExpiredToken(err error) bool { return is(err, InvalidOrExpiredTokenError) }
