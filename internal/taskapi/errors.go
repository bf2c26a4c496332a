package taskapi

import "errors"

// Sentinel errors for task service operations.
var (
	ErrNotFound     = errors.New("task not found")
	ErrBadRequest   = errors.New("invalid request")
	ErrConflict     = errors.New("task already exists")
	ErrUnauthorized = errors.New("unauthorized")
)
