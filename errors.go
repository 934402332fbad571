package jsonadm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeForbidden      ErrorType = "forbidden"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeStorage        ErrorType = "storage"
	ErrorTypeNotImplemented ErrorType = "not_implemented"
	ErrorTypeInternal       ErrorType = "internal"
)

// Error codes
const (
	ErrCodeInvalidBody       = "INVALID_BODY"
	ErrCodeMissingID         = "MISSING_ID"
	ErrCodeForbiddenClientID = "FORBIDDEN_CLIENT_ID"
	ErrCodeInvalidParameter  = "INVALID_PARAMETER"
	ErrCodeEntityNotFound    = "ENTITY_NOT_FOUND"
	ErrCodeDomainNotFound    = "DOMAIN_NOT_FOUND"
	ErrCodeStorageFailed     = "STORAGE_FAILED"
	ErrCodeNotImplemented    = "NOT_IMPLEMENTED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// AdminError is the error type shared by the handler, its collaborators and the managers.
type AdminError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"status,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AdminError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *AdminError) Unwrap() error {
	return e.Cause
}

// WithCause adds a cause to an AdminError
func (e *AdminError) WithCause(cause error) *AdminError {
	e.Cause = cause
	return e
}

// WithDetail adds a single detail to an AdminError
func (e *AdminError) WithDetail(key string, value any) *AdminError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithStatus overrides the HTTP status derived from the error type.
func (e *AdminError) WithStatus(status int) *AdminError {
	e.Status = status
	return e
}

// NewAdminError creates a new AdminError
func NewAdminError(errorType ErrorType, code, message string) *AdminError {
	return &AdminError{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// NewInvalidBodyError reports a request document that is not valid JSON:API.
func NewInvalidBodyError(message string, cause error) *AdminError {
	if message == "" {
		message = "Invalid JSON in body"
	}
	return &AdminError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidBody,
		Message: message,
		Cause:   cause,
	}
}

// NewMissingIDError reports a PATCH without any id.
func NewMissingIDError() *AdminError {
	return NewAdminError(ErrorTypeValidation, ErrCodeMissingID, "No ID given")
}

// NewForbiddenClientIDError reports a POST that carries ids.
func NewForbiddenClientIDError() *AdminError {
	return NewAdminError(ErrorTypeForbidden, ErrCodeForbiddenClientID, "Client generated IDs are not supported")
}

// NewInvalidParameterError reports an unusable query parameter.
func NewInvalidParameterError(param, message string) *AdminError {
	return NewAdminError(ErrorTypeValidation, ErrCodeInvalidParameter, message).
		WithDetail("parameter", param)
}

// NewEntityNotFoundError creates an entity not found error
func NewEntityNotFoundError(resource, id string) *AdminError {
	return NewAdminError(ErrorTypeNotFound, ErrCodeEntityNotFound,
		fmt.Sprintf("Item with ID \"%s\" in \"%s\" not found", id, resource)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// NewDomainNotFoundError reports a resource type no manager is registered for.
func NewDomainNotFoundError(resource string) *AdminError {
	return NewAdminError(ErrorTypeNotFound, ErrCodeDomainNotFound,
		fmt.Sprintf("Resource \"%s\" is not available", resource)).
		WithDetail("resource", resource)
}

// NewStorageError creates an error raised by a storage engine.
func NewStorageError(message string, cause error) *AdminError {
	return &AdminError{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeStorageFailed,
		Message: message,
		Cause:   cause,
	}
}

// NewNotImplementedError is returned for PUT.
func NewNotImplementedError(message string) *AdminError {
	return NewAdminError(ErrorTypeNotImplemented, ErrCodeNotImplemented, message).
		WithStatus(http.StatusNotImplemented)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *AdminError {
	return &AdminError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

// AsAdminError returns the first AdminError in err's chain.
func AsAdminError(err error) (*AdminError, bool) {
	var adminErr *AdminError
	if errors.As(err, &adminErr) {
		return adminErr, true
	}
	return nil, false
}

func hasType(err error, t ErrorType) bool {
	adminErr, ok := AsAdminError(err)
	return ok && adminErr.Type == t
}

// IsValidationError reports whether err is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsForbiddenError reports whether err is a forbidden error
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsNotFoundError reports whether err is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsStorageError reports whether err was raised by a storage engine
func IsStorageError(err error) bool { return hasType(err, ErrorTypeStorage) }

// IsDomainNotFoundError reports whether err names an unregistered resource type.
func IsDomainNotFoundError(err error) bool {
	adminErr, ok := AsAdminError(err)
	return ok && adminErr.Code == ErrCodeDomainNotFound
}

// StatusCode maps err to the HTTP status reported to the client. Storage failures are
// reported as 404.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	adminErr, ok := AsAdminError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if adminErr.Status != 0 {
		return adminErr.Status
	}
	switch adminErr.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeNotFound, ErrorTypeStorage:
		return http.StatusNotFound
	case ErrorTypeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
