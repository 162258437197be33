package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeStore       ErrorType = "store"
	ErrorTypeConcurrency ErrorType = "concurrency"
	ErrorTypeInternal    ErrorType = "internal"
)

// ClinicError represents a structured error raised by the audit service
type ClinicError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *ClinicError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ClinicError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(code, message string, cause error) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewStoreError wraps a failed persistence call
func NewStoreError(code, message string, cause error) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeStore,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConcurrencyError is returned when an audit run is already in flight
func NewConcurrencyError(code, message string) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeConcurrency,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *ClinicError {
	return &ClinicError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorTypeOf returns the type of the first ClinicError in err's chain, or
// ErrorTypeInternal when there is none.
func ErrorTypeOf(err error) ErrorType {
	var ce *ClinicError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrorTypeInternal
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return err != nil && ErrorTypeOf(err) == ErrorTypeValidation
}

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool {
	return err != nil && ErrorTypeOf(err) == ErrorTypeNotFound
}

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool {
	return err != nil && ErrorTypeOf(err) == ErrorTypeConflict
}

// IsStore reports whether err is a persistence failure
func IsStore(err error) bool {
	return err != nil && ErrorTypeOf(err) == ErrorTypeStore
}

// IsConcurrency reports whether err was caused by a run already in flight
func IsConcurrency(err error) bool {
	return err != nil && ErrorTypeOf(err) == ErrorTypeConcurrency
}

// Common error codes
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeStoreFailure      = "STORE_FAILURE"
	ErrCodeAuditInProgress   = "AUDIT_IN_PROGRESS"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeInvalidStatus     = "INVALID_STATUS"
	ErrCodeMissingGuia       = "MISSING_NUMERO_GUIA"
	ErrCodeMissingCodigo     = "MISSING_CODIGO_FICHA"
	ErrCodeMissingDivergence = "MISSING_DIVERGENCE_FIELD"
)
