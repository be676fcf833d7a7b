package domain

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by stores
// and services to communicate domain-specific error conditions.
// -----------------------------------------------------------------------------

// ErrValidation is the sentinel wrapped by every ValidationError
var ErrValidation = errors.New("validation failed")

// Difficulty profile errors
var (
	ErrProfileNotFound     = errors.New("difficulty profile not found")
	ErrProfileExists       = errors.New("difficulty profile already exists")
	ErrVersionConflict     = errors.New("difficulty profile was modified concurrently")
	ErrDuplicateCompletion = errors.New("completion already recorded for this exercise")
)

// Onboarding errors
var (
	ErrUnknownSkillLevel = errors.New("unknown skill level")
)

// ValidationError reports malformed input to the engine: a completion record
// or a threshold configuration. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrValidation)
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
