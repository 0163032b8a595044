package content

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound means the referenced content id does not exist.
	ErrNotFound = errors.New("content not found")
	// ErrUnavailable means the store or network could not be reached.
	ErrUnavailable = errors.New("store unavailable")
	// ErrNotPersisted is returned by Create when the write never reached the store.
	ErrNotPersisted = &kindError{msg: "content not persisted", parent: ErrUnavailable}
	// ErrInvalidMediaType is a client-side rejection, raised before any transfer starts.
	ErrInvalidMediaType = errors.New("invalid media type")
	// ErrUploadFailed covers partial or failed blob transfers.
	ErrUploadFailed = errors.New("upload failed")
	// ErrInvalid marks aggregates or responses that fail validation.
	ErrInvalid = errors.New("invalid content")
)

// kindError is a sentinel that also matches a broader parent kind.
type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.parent }

// FieldError describes one rejected field, keyed by its json path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field problem found in one pass.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrInvalid.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Message)
	}
	return ErrInvalid.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
