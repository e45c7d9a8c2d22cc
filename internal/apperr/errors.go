// Package apperr defines the error taxonomy shared by the document model,
// the sync engine and the remote store backends.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation    = errors.New("validation failed")
	ErrTransport     = errors.New("transport error")
	ErrConfiguration = errors.New("remote store not configured")

	// Sync engine state errors.
	ErrBusy            = errors.New("another save or sync is in progress")
	ErrConflictPending = errors.New("a conflict is awaiting resolution")
	ErrNoConflict      = errors.New("no conflict to resolve")
	ErrNotLoaded       = errors.New("document is still loading")
)

// ValidationKind classifies a rejected document mutation.
type ValidationKind string

const (
	EmptyName      ValidationKind = "empty_name"
	EmptyReference ValidationKind = "empty_reference"
	InvalidParent  ValidationKind = "invalid_parent"
	NotFound       ValidationKind = "not_found"
)

// ValidationError is returned synchronously by document mutations. A mutation
// that returns one has not modified the document.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is matches ErrValidation for every kind and ErrNotFound for NotFound.
func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	return target == ErrNotFound && e.Kind == NotFound
}

// Invalid builds a ValidationError with a formatted message.
func Invalid(kind ValidationKind, format string, args ...any) error {
	return &ValidationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the validation kind of err, or "" if err is not a ValidationError.
func KindOf(err error) ValidationKind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return ""
}

// TransportError describes a failure reaching or using the remote store.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match any TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Transport wraps err as a TransportError for op. A nil err yields nil.
func Transport(op string, status int, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, StatusCode: status, Err: err}
}
