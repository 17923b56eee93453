package rda

import "fmt"

// =====================================
// Error Handling
// =====================================

// ErrorType partitions the error taxonomy: rejected input, missing
// entity, or a failed store operation.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeDatabase   ErrorType = "database"
)

// Error is the error type surfaced by repositories and connection managers.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Code    ErrorCode
}

// Error implements the error interface
func (e Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e Error) Is(target error) bool {
	if targetErr, ok := target.(Error); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// NewValidationError creates an error for rejected caller input
func NewValidationError(message string) Error {
	return Error{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewNotFoundError creates an error for a missing entity
func NewNotFoundError(message string) Error {
	return Error{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewDatabaseError creates an error for a failed store operation. The cause
// is always carried so callers can unwrap the original failure.
func NewDatabaseError(message string, cause error) Error {
	return Error{
		Type:    ErrorTypeDatabase,
		Message: message,
		Cause:   cause,
	}
}

// NewDatabaseErrorWithCode creates a database error tagged with a classified code
func NewDatabaseErrorWithCode(message string, code ErrorCode, cause error) Error {
	return Error{
		Type:    ErrorTypeDatabase,
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	if rdaErr, ok := err.(Error); ok {
		return rdaErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidation checks if an error is a "validation" error
func IsValidation(err error) bool {
	if rdaErr, ok := err.(Error); ok {
		return rdaErr.Type == ErrorTypeValidation
	}
	return false
}

// IsDatabase checks if an error is a "database" error
func IsDatabase(err error) bool {
	if rdaErr, ok := err.(Error); ok {
		return rdaErr.Type == ErrorTypeDatabase
	}
	return false
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	if rdaErr, ok := err.(Error); ok {
		return rdaErr.Type == errorType
	}
	return false
}
