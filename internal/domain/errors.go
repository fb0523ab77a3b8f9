package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates bad or missing input. No state was changed.
	ErrValidation = errors.New("validation failed")

	// ErrCapacityExceeded indicates a sponsor already holds the maximum
	// number of children for the flow's registration type.
	ErrCapacityExceeded = errors.New("sponsor has no free child slot")

	// ErrInvalidLevel indicates a child whose level is not parent level + 1.
	ErrInvalidLevel = errors.New("participant level does not follow its parent")

	// ErrNotEligible indicates the participant is in the wrong lifecycle
	// state for the requested action.
	ErrNotEligible = errors.New("participant is not eligible for this action")

	// ErrAlreadyRegistered indicates registration data is already present.
	ErrAlreadyRegistered = errors.New("participant already registered")

	// ErrCycleDetected indicates a corrupted parent chain.
	ErrCycleDetected = errors.New("cycle detected in participant tree")

	// ErrTransactionFailure wraps any failure inside an atomic multi-entity unit.
	ErrTransactionFailure = errors.New("action failed")

	// ErrForbidden indicates the actor may not perform the action.
	ErrForbidden = errors.New("actor is not allowed to perform this action")
)

// FieldError is a validation error tied to one input field.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

func fieldErr(field, format string, args ...any) error {
	return &FieldError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
