package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingField       = errors.New("lamed: missing required field")
	ErrInvalidField       = errors.New("lamed: invalid field value")
	ErrBackendUnavailable = errors.New("lamed: backend unavailable")
	ErrRetriesExhausted   = errors.New("lamed: transaction retries exhausted")
	ErrCorruptCounterKey  = errors.New("lamed: corrupt counter key")
	ErrUnknownOperation   = errors.New("lamed: unknown operation")
)

// FieldError reports a request field that failed validation.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func missing(field string) error {
	return &FieldError{Field: field, Err: ErrMissingField}
}

// Separator is the single character joining composite key fields. No field
// value may contain it.
const Separator = ":"

// CheckField rejects a value that would make a composite key ambiguous.
func CheckField(field, value string) error {
	if strings.Contains(value, Separator) {
		return &FieldError{Field: field, Err: ErrInvalidField}
	}
	return nil
}
