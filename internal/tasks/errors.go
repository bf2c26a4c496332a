package tasks

import "errors"

// Sentinel errors for task operations.
var (
	ErrEmptyText       = errors.New("task text is empty")
	ErrMustDoFull      = errors.New("must-do section is full")
	ErrNotFound        = errors.New("task not found")
	ErrUnauthenticated = errors.New("not signed in")
	ErrInvalidSection  = errors.New("unknown section")
	ErrInvalidList     = errors.New("unknown task list")
)
