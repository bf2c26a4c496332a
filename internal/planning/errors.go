package planning

import "errors"

// Sentinel errors for the planning ritual.
var (
	ErrInvalidStep    = errors.New("action not available at this step")
	ErrNotPending     = errors.New("task is not awaiting a carry-over decision")
	ErrUnresolved     = errors.New("carry-over tasks still need a decision")
	ErrSelectionFull  = errors.New("three tasks already selected")
	ErrFutureVersion  = errors.New("planning state was written by a newer version")
	ErrNotInSelection = errors.New("task is not a planning candidate")
)
