package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes reported to callers.
const (
	CodeValidation      = "VALIDATION_FAILED"
	CodeNotFound        = "NOT_FOUND"
	CodeManagerNotFound = "MANAGER_NOT_FOUND"
	CodeSelfReference   = "SELF_REFERENCE"
	CodeCycleDetected   = "CYCLE_DETECTED"
	CodeInternal        = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewManagerNotFound(managerID string) error {
	return NewDomainError(CodeManagerNotFound, "manager not found", http.StatusUnprocessableEntity,
		map[string]any{"manager_id": managerID})
}

func NewSelfReference(employeeID string) error {
	return NewDomainError(CodeSelfReference, "employee cannot be their own manager", http.StatusUnprocessableEntity,
		map[string]any{"employee_id": employeeID})
}

func NewCycleDetected(employeeID, managerID string) error {
	return NewDomainError(CodeCycleDetected, "manager assignment would create a cycle", http.StatusConflict,
		map[string]any{"employee_id": employeeID, "manager_id": managerID})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err, or anything it wraps, is a DomainError with code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
