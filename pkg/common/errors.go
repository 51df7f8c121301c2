package common

import (
	"errors"
	"net/http"
)

// Sentinel errors for the trip lifecycle. Handlers and tests match on these
// with errors.Is; AppError carries them across the HTTP boundary.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrBadRequest           = errors.New("bad request")
	ErrInternalServer       = errors.New("internal server error")
	ErrValidation           = errors.New("validation error")
	ErrAlreadyAccepted      = errors.New("trip already accepted by another driver")
	ErrOutOfServiceArea     = errors.New("location outside service area")
	ErrStaleRequest         = errors.New("trip request is stale")
	ErrFareLocked           = errors.New("contribution already locked")
	ErrPaymentRetryExhausted = errors.New("payment retries exhausted")
	ErrInvalidTransition    = errors.New("invalid trip status transition")
	ErrServiceUnavailable   = errors.New("service temporarily unavailable")
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped sentinel for errors.Is checks.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func NewNotFoundError(message string, err error) *AppError {
	if err == nil {
		err = ErrNotFound
	}
	return &AppError{
		Code:    http.StatusNotFound,
		Message: message,
		Err:     err,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Message: message,
		Err:     ErrUnauthorized,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    http.StatusForbidden,
		Message: message,
		Err:     ErrForbidden,
	}
}

func NewBadRequestError(message string, err error) *AppError {
	if err == nil {
		err = ErrBadRequest
	}
	return &AppError{
		Code:    http.StatusBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternalServerError(message string) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: message,
		Err:     ErrInternalServer,
	}
}

func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: message,
		Err:     err,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Message: message,
		Err:     ErrValidation,
	}
}

// NewAlreadyAcceptedError signals that the conditional accept write was
// rejected. Callers must stop retrying the same trip.
func NewAlreadyAcceptedError() *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Message: "ride has already been taken",
		Err:     ErrAlreadyAccepted,
	}
}

// NewOutOfServiceAreaError signals that pricing could not resolve a zone for
// one of the trip endpoints. The trip is never created.
func NewOutOfServiceAreaError(message string) *AppError {
	if message == "" {
		message = "pickup or destination is outside the service area"
	}
	return &AppError{
		Code:    http.StatusUnprocessableEntity,
		Message: message,
		Err:     ErrOutOfServiceArea,
	}
}

func NewServiceUnavailableError(message string) *AppError {
	return &AppError{
		Code:    http.StatusServiceUnavailable,
		Message: message,
		Err:     ErrServiceUnavailable,
	}
}
