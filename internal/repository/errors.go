package repository

import "github.com/pkg/errors"

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
	// ErrConflict is returned when the capacity gate loses: the team's
	// active roster is already at capacity.
	ErrConflict = errors.New("conflict")
)
