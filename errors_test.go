package rda

import (
	"errors"
	"testing"
)

func TestErrorFields(t *testing.T) {
	err := Error{
		Type:    ErrorTypeValidation,
		Message: "validation failed",
		Code:    CodeUnknown,
	}

	if err.Type != ErrorTypeValidation {
		t.Errorf("Expected error type validation, got %s", err.Type)
	}
	if err.Message != "validation failed" {
		t.Errorf("Expected message 'validation failed', got '%s'", err.Message)
	}
	if err.Code != CodeUnknown {
		t.Errorf("Expected code 'unknown_error', got '%s'", err.Code)
	}
}

func TestErrorMessage(t *testing.T) {
	err := Error{
		Type:    ErrorTypeNotFound,
		Message: "record not found",
	}

	expected := "not_found: record not found"
	if err.Error() != expected {
		t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
	}
}

func TestErrorMessageWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDatabaseError("query failed", cause)

	if err.Cause != cause {
		t.Error("Expected cause to be set")
	}

	expectedMsg := "database: query failed (caused by: connection refused)"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("original error")
	err := NewDatabaseError("wrapped error", cause)

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Error("Expected unwrapped error to match original cause")
	}
	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause in the chain")
	}
}

func TestErrorIs(t *testing.T) {
	err1 := NewValidationError("first validation error")
	err2 := NewValidationError("second validation error")
	err3 := NewNotFoundError("not found error")

	if !errors.Is(err1, err2) {
		t.Error("Expected errors with same type to be equal")
	}
	if errors.Is(err1, err3) {
		t.Error("Expected errors with different types to not be equal")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("id is required")

	if err.Type != ErrorTypeValidation {
		t.Errorf("Expected error type validation, got %s", err.Type)
	}
	if err.Cause != nil {
		t.Error("Expected no cause for a validation error")
	}
}

func TestNewDatabaseErrorWithCode(t *testing.T) {
	cause := errors.New("upstream broke")
	err := NewDatabaseErrorWithCode("operation failed", CodeTimeout, cause)

	if err.Type != ErrorTypeDatabase {
		t.Errorf("Expected error type database, got %s", err.Type)
	}
	if err.Code != CodeTimeout {
		t.Errorf("Expected code timeout, got '%s'", err.Code)
	}
	if err.Cause != cause {
		t.Error("Expected cause to be set")
	}
}

func TestErrorPredicates(t *testing.T) {
	validationErr := NewValidationError("validation error")
	notFoundErr := NewNotFoundError("not found")
	databaseErr := NewDatabaseError("database error", errors.New("cause"))
	regularErr := errors.New("regular error")

	if !IsValidation(validationErr) || IsValidation(notFoundErr) || IsValidation(regularErr) {
		t.Error("IsValidation misclassified an error")
	}
	if !IsNotFound(notFoundErr) || IsNotFound(validationErr) || IsNotFound(regularErr) {
		t.Error("IsNotFound misclassified an error")
	}
	if !IsDatabase(databaseErr) || IsDatabase(notFoundErr) || IsDatabase(regularErr) {
		t.Error("IsDatabase misclassified an error")
	}
}

func TestIsErrorType(t *testing.T) {
	err := NewValidationError("validation error")

	if !IsErrorType(err, ErrorTypeValidation) {
		t.Error("Expected IsErrorType to return true for matching type")
	}
	if IsErrorType(err, ErrorTypeNotFound) {
		t.Error("Expected IsErrorType to return false for non-matching type")
	}
	if IsErrorType(errors.New("regular error"), ErrorTypeValidation) {
		t.Error("Expected IsErrorType to return false for foreign error")
	}
}

func TestErrorTypeStrings(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  string
	}{
		{ErrorTypeValidation, "validation"},
		{ErrorTypeNotFound, "not_found"},
		{ErrorTypeDatabase, "database"},
	}

	for _, tt := range tests {
		if string(tt.errorType) != tt.expected {
			t.Errorf("Expected %s to be '%s'", tt.errorType, tt.expected)
		}
	}
}
