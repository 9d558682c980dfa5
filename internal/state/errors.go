package state

import "errors"

// Lookup and registration errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Workflow and persistence errors.
var (
	ErrNoWorkflow       = errors.New("no workflow started")
	ErrNoPersistence    = errors.New("no snapshot gateway configured")
	ErrNoResumableState = errors.New("no resumable state")
	ErrInvalidTaskMeta  = errors.New("invalid task metadata")
)
