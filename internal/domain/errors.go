package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity or artifact was not found.
	ErrNotFound = errors.New("not found")

	// ErrCorrupt indicates that a persisted artifact exists but cannot be parsed.
	ErrCorrupt = errors.New("corrupt artifact")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrServiceUnavailable indicates that an external collaborator (LLM or search) failed.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrParse indicates that a collaborator returned text that could not be repaired into JSON.
	ErrParse = errors.New("parse error")

	// ErrLoad indicates that a persisted session could not be reconstructed.
	ErrLoad = errors.New("session load failed")

	// ErrTranslation indicates that topic normalization produced no usable response.
	ErrTranslation = errors.New("translation failed")

	// ErrDuplicateCategory indicates two plan categories share the same sanitized path segment.
	ErrDuplicateCategory = errors.New("duplicate category")

	// ErrWorkflowFailed indicates that a Temporal workflow failed.
	ErrWorkflowFailed = errors.New("workflow failed")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the cause when present, otherwise ErrInvalidInput.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidInput, e.Err}
	}
	return []error{ErrInvalidInput}
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// CorruptError reports an artifact whose content could not be decoded.
type CorruptError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt artifact %s: %v", e.Path, e.Err)
}

// Unwrap returns both ErrCorrupt and the decode error.
func (e *CorruptError) Unwrap() []error {
	return []error{ErrCorrupt, e.Err}
}

// ServiceError wraps a transport or auth failure from an external collaborator.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns both ErrServiceUnavailable and the cause.
func (e *ServiceError) Unwrap() []error {
	return []error{ErrServiceUnavailable, e.Err}
}

// ParseError reports a JSON response that could not be repaired.
type ParseError struct {
	Op  string
	Raw string
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response: %v", e.Op, e.Err)
}

// Unwrap returns both ErrParse and the cause.
func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// LoadError reports a session whose persisted metadata is missing or incomplete.
type LoadError struct {
	SessionID string
	Field     string
	Err       error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("load session %s: missing %s", e.SessionID, e.Field)
	}
	return fmt.Sprintf("load session %s: %v", e.SessionID, e.Err)
}

// Unwrap returns ErrLoad and the underlying cause when present.
func (e *LoadError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrLoad, e.Err}
	}
	return []error{ErrLoad}
}

// TranslationError reports a translate call whose response field was absent.
type TranslationError struct {
	Topic string
}

// Error implements the error interface.
func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate topic %q: response field missing", e.Topic)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *TranslationError) Unwrap() error {
	return ErrTranslation
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewServiceError creates a new ServiceError.
func NewServiceError(service, op string, err error) *ServiceError {
	return &ServiceError{
		Service: service,
		Op:      op,
		Err:     err,
	}
}

// NewLoadError creates a LoadError for a missing metadata field.
func NewLoadError(sessionID, field string) *LoadError {
	return &LoadError{
		SessionID: sessionID,
		Field:     field,
	}
}
