package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the kind of error
type ErrorType string

const (
	// ErrorTypeValidation represents a validation failure
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeNotFound represents a missing resource
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypePrecondition represents a failed precondition detected before any mutation
	ErrorTypePrecondition ErrorType = "PRECONDITION"

	// ErrorTypeSystem represents a system level error
	ErrorTypeSystem ErrorType = "SYSTEM"

	// ErrorTypeNetwork represents a network related error
	ErrorTypeNetwork ErrorType = "NETWORK"

	// ErrorTypeTimeout represents a timeout or exhausted retries
	ErrorTypeTimeout ErrorType = "TIMEOUT"

	// ErrorTypeExternal represents a failed external operation (package, driver, initramfs)
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeVerification represents a failed post-change verification
	ErrorTypeVerification ErrorType = "VERIFICATION"
)

// DomainError represents a domain level error
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is compares errors by type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Constructors

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *DomainError {
	return &DomainError{
		Type:    ErrorTypeValidation,
		Message: message,
		Cause:   cause,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *DomainError {
	return &DomainError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewPreconditionError creates a precondition error
func NewPreconditionError(message string, cause error) *DomainError {
	return &DomainError{
		Type:    ErrorTypePrecondition,
		Message: message,
		Cause:   cause,
	}
}

// NewSystemError creates a system error
func NewSystemError(message string, cause error) *DomainError {
	return &DomainError{
		Type:    ErrorTypeSystem,
		Message: message,
		Cause:   cause,
	}
}

// NewNetworkError creates a network error
func NewNetworkError(message string, cause error) *DomainError {
	return &DomainError{
		Type:    ErrorTypeNetwork,
		Message: message,
		Cause:   cause,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(message string) *DomainError {
	return &DomainError{
		Type:    ErrorTypeTimeout,
		Message: message,
	}
}

// NewExternalError creates an external operation error
func NewExternalError(message string, cause error) *DomainError {
	return &DomainError{
		Type:    ErrorTypeExternal,
		Message: message,
		Cause:   cause,
	}
}

// NewVerificationError creates a verification error
func NewVerificationError(message string, cause error) *DomainError {
	return &DomainError{
		Type:    ErrorTypeVerification,
		Message: message,
		Cause:   cause,
	}
}

// Type check helpers

// TypeOf returns the type of the outermost DomainError in the chain, or an empty type
func TypeOf(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// IsValidationError reports whether err is a validation error
func IsValidationError(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsNotFoundError reports whether err is a not found error
func IsNotFoundError(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsPreconditionError reports whether err is a precondition error
func IsPreconditionError(err error) bool {
	return TypeOf(err) == ErrorTypePrecondition
}

// IsSystemError reports whether err is a system error
func IsSystemError(err error) bool {
	return TypeOf(err) == ErrorTypeSystem
}

// IsNetworkError reports whether err is a network error
func IsNetworkError(err error) bool {
	return TypeOf(err) == ErrorTypeNetwork
}

// IsTimeoutError reports whether err is a timeout error
func IsTimeoutError(err error) bool {
	return TypeOf(err) == ErrorTypeTimeout
}

// IsExternalError reports whether err is an external operation error
func IsExternalError(err error) bool {
	return TypeOf(err) == ErrorTypeExternal
}

// IsVerificationError reports whether err is a verification error
func IsVerificationError(err error) bool {
	return TypeOf(err) == ErrorTypeVerification
}
