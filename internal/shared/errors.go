package shared

import "errors"

var (
	// ErrNotFound indicates a referenced resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState occurs when an action violates a status workflow.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrRoleSeparation occurs when the creator of a record attempts to approve it.
	ErrRoleSeparation = errors.New("creator cannot approve own record")
	// ErrInvalidInput indicates a validation failure on caller input.
	ErrInvalidInput = errors.New("invalid input")
)
