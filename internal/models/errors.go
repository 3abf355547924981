package models

import "errors"

var (
	// ErrValidation marks bad input. Nothing was written.
	ErrValidation = errors.New("validation failed")
	// ErrStateConflict marks a command that the current record state forbids.
	ErrStateConflict = errors.New("state conflict")
	// ErrNotFound is also returned for records the actor is not allowed to see.
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)
