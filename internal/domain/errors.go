// Package domain defines the core pipeline entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidStructure is returned by a structural checker when a record
	// must not cross a stage boundary.
	ErrInvalidStructure = errors.New("invalid structure")

	// ErrUnknownStage is returned when a stage name is not one of the four
	// pipeline stages.
	ErrUnknownStage = errors.New("unknown stage")
)
