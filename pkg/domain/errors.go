package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the session may not perform the action.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials is returned when username and secret do not match a stored user.
	// The message is shown to end users and must not reveal which half was wrong.
	ErrInvalidCredentials = errors.New("invalid ID or password")

	// ErrNotFound is returned when the target record is no longer present.
	ErrNotFound = errors.New("not found")

	// ErrNotConfirmed is returned when a destructive action was not confirmed.
	ErrNotConfirmed = errors.New("action not confirmed")
)

// Validation error codes.
const (
	CodeTooManyFiles     = "too_many_files"
	CodePayloadTooLarge  = "payload_too_large"
	CodeNoFiles          = "no_files"
	CodeUnsupportedMedia = "unsupported_media"
	CodeInvalidGallery   = "invalid_gallery"
	CodeInvalidField     = "invalid_field"
	CodeInvalidStatus    = "invalid_status"
	CodeWeakPassword     = "weak_password"
	CodeDuplicate        = "duplicate"
)

// ValidationError reports input the user can correct.
type ValidationError struct {
	Code    string
	Field   string
	Message string
	// Limit and Total carry the violated bound and the observed value when relevant.
	Limit int64
	Total int64
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(code, field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a failed call to the document store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Persistence wraps err as a PersistenceError unless it is nil or already typed.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.Is(err, ErrNotFound) || errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence reports whether err carries a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
