// Package apperr defines the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	// ErrEmptyContent is returned when a note would be created or saved with
	// blank content.
	ErrEmptyContent = errors.New("note content cannot be empty")
)
