package dto

import (
	"errors"
	"fmt"
)

// ErrInvalidDate is returned when a value cannot be interpreted as a date.
// It is the only coercion failure.
var ErrInvalidDate = errors.New("invalid date")

// FieldError reports a coercion failure for a named field.
type FieldError struct {
	Field string
	Type  Type
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("dto: field %q (%s): %v", e.Field, e.Type, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
