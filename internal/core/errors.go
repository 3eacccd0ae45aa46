package core

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is; the HTTP layer maps each
// kind to a status code.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrFatalConfiguration = errors.New("fatal configuration error")
)

// Validation wraps msg as an ErrValidation.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Validationf is Validation with formatting. A %w verb in format keeps the
// wrapped cause reachable.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrValidation, fmt.Errorf(format, args...))
}

// NotFound reports a missing entity, or one the caller does not own.
func NotFound(entity string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, entity, id)
}

func Conflict(msg string) error {
	return fmt.Errorf("%w: %s", ErrConflict, msg)
}

// AsValidation marks err as a validation failure unless it already carries a kind.
func AsValidation(err error) error {
	if err == nil || IsKind(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// IsKind reports whether err already wraps one of the error kinds.
func IsKind(err error) bool {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrUnauthorized, ErrFatalConfiguration} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
