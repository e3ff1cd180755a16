// Package errs defines the structured error kinds used across the
// background-task connector: validation failures, URN namespace mismatches,
// general domain errors, and worker-runtime exceptions.
package errs

import "fmt"

// ValidationError reports one or more field-level validation failures
// rejected before any persistence takes place.
type ValidationError struct {
	Failures map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %d field(s) invalid", len(e.Failures))
}

// NewValidationError builds a ValidationError from a set of field->reason
// failures.
func NewValidationError(failures map[string]string) *ValidationError {
	return &ValidationError{Failures: failures}
}

// NamespaceMismatchError is returned when a URN is syntactically valid but
// addresses a namespace other than this connector's.
type NamespaceMismatchError struct {
	Got      string
	Expected string
}

func (e *NamespaceMismatchError) Error() string {
	return fmt.Sprintf("namespace mismatch: got %q, expected %q", e.Got, e.Expected)
}

// GeneralError is a structured domain error carrying a source component name
// and a message key, with an optional wrapped inner cause.
type GeneralError struct {
	Source     string
	MessageKey string
	Inner      error
}

func (e *GeneralError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("%s.%s: %v", e.Source, e.MessageKey, e.Inner)
	}
	return fmt.Sprintf("%s.%s", e.Source, e.MessageKey)
}

func (e *GeneralError) Unwrap() error { return e.Inner }

// NewGeneralError builds a GeneralError.
func NewGeneralError(source, messageKey string, inner error) *GeneralError {
	return &GeneralError{Source: source, MessageKey: messageKey, Inner: inner}
}

// WorkerException is produced by the worker runtime adapter when the worker
// process itself faulted (panic, crash, or returned error). Inner, if
// present, is the original cause and is unwrapped exactly one level by the
// connector when recording the task's error field.
type WorkerException struct {
	Inner error
}

func (e *WorkerException) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("worker-exception: %v", e.Inner)
	}
	return "worker-exception"
}

func (e *WorkerException) Unwrap() error { return e.Inner }

// NewWorkerException wraps cause as a WorkerException.
func NewWorkerException(cause error) *WorkerException {
	return &WorkerException{Inner: cause}
}

// Kind identifies the structured error kind for serialization.
type Kind string

const (
	KindValidation        Kind = "validationError"
	KindNamespaceMismatch Kind = "namespaceMismatch"
	KindGeneral           Kind = "generalError"
	KindWorkerException   Kind = "worker-exception"
)

// KindOf classifies err into one of the structured Kinds, or "" if it does
// not match any known kind.
func KindOf(err error) Kind {
	switch err.(type) {
	case *ValidationError:
		return KindValidation
	case *NamespaceMismatchError:
		return KindNamespaceMismatch
	case *GeneralError:
		return KindGeneral
	case *WorkerException:
		return KindWorkerException
	default:
		return ""
	}
}
