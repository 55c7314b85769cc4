package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound            = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists       = new(ErrCodeAlreadyExists, "resource already exists")
	ErrValidation          = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation    = new(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied    = new(ErrCodePermissionDenied, "permission denied")
	ErrDatabase            = new(ErrCodeDatabase, "database error")
	ErrSystem              = new(ErrCodeSystemError, "system error")
	ErrGatewayDeclined     = new(ErrCodeGatewayDeclined, "payment declined by gateway")
	ErrGatewayTransient    = new(ErrCodeGatewayTransient, "transient gateway failure")
	ErrIdempotencyConflict = new(ErrCodeIdempotencyConflict, "idempotency key conflict")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:            http.StatusNotFound,
		ErrAlreadyExists:       http.StatusConflict,
		ErrValidation:          http.StatusBadRequest,
		ErrInvalidOperation:    http.StatusBadRequest,
		ErrPermissionDenied:    http.StatusForbidden,
		ErrDatabase:            http.StatusInternalServerError,
		ErrSystem:              http.StatusInternalServerError,
		ErrGatewayDeclined:     http.StatusPaymentRequired,
		ErrGatewayTransient:    http.StatusBadGateway,
		ErrIdempotencyConflict: http.StatusConflict,
	}

	// retryable errors may be resubmitted by the caller with the same
	// idempotency key; everything else indicates a client or terminal failure
	retryableErrors = []error{
		ErrGatewayTransient,
		ErrDatabase,
		ErrSystem,
	}
)

const (
	ErrCodeSystemError         = "system_error"
	ErrCodeNotFound            = "not_found"
	ErrCodeAlreadyExists       = "already_exists"
	ErrCodeValidation          = "validation_error"
	ErrCodeInvalidOperation    = "invalid_operation"
	ErrCodePermissionDenied    = "permission_denied"
	ErrCodeDatabase            = "database_error"
	ErrCodeGatewayDeclined     = "gateway_declined"
	ErrCodeGatewayTransient    = "gateway_transient"
	ErrCodeIdempotencyConflict = "idempotency_conflict"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// new creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsGatewayDeclined checks if the gateway rejected the financial operation
func IsGatewayDeclined(err error) bool {
	return errors.Is(err, ErrGatewayDeclined)
}

// IsGatewayTransient checks if an error is a transient gateway failure
func IsGatewayTransient(err error) bool {
	return errors.Is(err, ErrGatewayTransient)
}

// IsIdempotencyConflict checks if the same idempotency key was reused with
// different request parameters
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyConflict)
}

// IsRetryable reports whether the caller may retry the operation with the
// same idempotency key
func IsRetryable(err error) bool {
	for _, e := range retryableErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// ErrCodeFromErr returns the stable machine-readable code for an error
func ErrCodeFromErr(err error) string {
	for e := range statusCodeMap {
		if errors.Is(err, e) {
			if ie, ok := e.(*InternalError); ok {
				return ie.Code
			}
		}
	}
	return ErrCodeSystemError
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
