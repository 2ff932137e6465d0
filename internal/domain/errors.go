package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
)

// Validation errors
var (
	ErrInvalidContentKind = NewDomainError(ErrCodeValidation, "invalid content kind")
	ErrInvalidJobType     = NewDomainError(ErrCodeValidation, "invalid job type")
	ErrInvalidJobStatus   = NewDomainError(ErrCodeValidation, "invalid job status")
	ErrInvalidThreshold   = NewDomainError(ErrCodeValidation, "similarity threshold must be between 0 and 1")
	ErrInvalidLimit       = NewDomainError(ErrCodeValidation, "limit must be a positive integer")
	ErrEmptyQuery         = NewDomainError(ErrCodeValidation, "query cannot be empty")
)

// Not found errors
var (
	ErrFileNotFound       = NewDomainError(ErrCodeNotFound, "knowledge file not found")
	ErrChunkNotFound      = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrJobNotFound        = NewDomainError(ErrCodeNotFound, "embedding job not found")
	ErrAssignmentNotFound = NewDomainError(ErrCodeNotFound, "knowledge assignment not found")
)

// Operation errors
var (
	// ErrDimensionMismatch signals that a query embedding's dimensionality
	// differs from the stored corpus. Vectors from different models must
	// never be compared silently.
	ErrDimensionMismatch = NewDomainError(ErrCodeInvalidOperation, "query embedding dimensions do not match corpus")
	// ErrInvalidJobTransition signals an attempt to move a job out of a
	// terminal state or skip a lifecycle step.
	ErrInvalidJobTransition = NewDomainError(ErrCodeInvalidOperation, "invalid embedding job status transition")
	ErrJobNotCancellable    = NewDomainError(ErrCodeInvalidOperation, "job is already terminal and cannot be cancelled")
	ErrFileInactive         = NewDomainError(ErrCodeInvalidOperation, "knowledge file is inactive")
)
