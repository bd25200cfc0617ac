package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypePrecondition     ErrorType = "precondition"
	ErrorTypeMethodNotAllowed ErrorType = "method_not_allowed"
	ErrorTypeConflict         ErrorType = "conflict"
	ErrorTypeInternal         ErrorType = "internal"
	ErrorTypeUpstream         ErrorType = "upstream"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Wrap derives an error with the type and message of e and err as its cause
func (e *DomainError) Wrap(err error) *DomainError {
	return NewDomainError(e.Type, e.Message, err)
}

// Wrapf derives an error with the type of e, a specific message and err as its cause
func (e *DomainError) Wrapf(err error, format string, args ...interface{}) *DomainError {
	return NewDomainError(e.Type, fmt.Sprintf(format, args...), err)
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinel errors. Use errors.Is to match on type; never add details to these directly.
var (
	ErrDocumentNotFound = NewDomainError(ErrorTypeNotFound, "document not found", nil)

	ErrInvalidPayload    = NewDomainError(ErrorTypeValidation, "invalid payload", nil)
	ErrEmptyCSV          = NewDomainError(ErrorTypeValidation, "CSV data is empty", nil)
	ErrUnknownCollection = NewDomainError(ErrorTypeValidation, "unknown collection", nil)
	ErrStorageMetadata   = NewDomainError(ErrorTypeValidation, "received Cloud Storage metadata instead of row data", nil)

	ErrAppCheckMissing = NewDomainError(ErrorTypePrecondition, "The function must be called from an App Check verified app.", nil)
	ErrAppCheckInvalid = NewDomainError(ErrorTypePrecondition, "App Check token is invalid.", nil)

	ErrMethodNotAllowed = NewDomainError(ErrorTypeMethodNotAllowed, "method not allowed", nil)

	ErrStore         = NewDomainError(ErrorTypeInternal, "store operation failed", nil)
	ErrWriteConflict = NewDomainError(ErrorTypeConflict, "import batch conflicted with a concurrent write, retry the import", nil)

	ErrUpstreamFetch  = NewDomainError(ErrorTypeUpstream, "web book fetch failed", nil)
	ErrSourceDisabled = NewDomainError(ErrorTypeUpstream, "web book source URL is not configured", nil)
)

// Validationf builds a validation error with a formatted message
func Validationf(format string, args ...interface{}) *DomainError {
	return NewDomainError(ErrorTypeValidation, fmt.Sprintf(format, args...), nil)
}

// NotFoundf builds a not found error with a formatted message
func NotFoundf(format string, args ...interface{}) *DomainError {
	return NewDomainError(ErrorTypeNotFound, fmt.Sprintf(format, args...), nil)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsPreconditionError checks if an error is an App Check / precondition error
func IsPreconditionError(err error) bool {
	return GetErrorType(err) == ErrorTypePrecondition
}

// IsMethodNotAllowedError checks if an error is a method not allowed error
func IsMethodNotAllowedError(err error) bool {
	return GetErrorType(err) == ErrorTypeMethodNotAllowed
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal (store) error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsUpstreamError checks if an error is an upstream fetch error
func IsUpstreamError(err error) bool {
	return GetErrorType(err) == ErrorTypeUpstream
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetErrorMessage returns the caller-facing message of a domain error
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
