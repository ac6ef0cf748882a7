package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidStatus rejects a requested machine status outside the enumerated
// set. The command performs no store mutation and emits no event.
var ErrInvalidStatus = errors.New("invalid machine status")

// ValidationError reports missing or malformed input; the caller must correct
// and retry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalidField(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}
