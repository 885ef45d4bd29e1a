package session

import "errors"

var (
	// ErrInvalidArgument is returned for malformed configuration
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrIllegalTransition is returned when an operation is not allowed in the current phase
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrCollaboratorFailure wraps failed session start/stop notifications
	ErrCollaboratorFailure = errors.New("collaborator failure")
	// ErrControllerStopped is returned once the controller loop has exited
	ErrControllerStopped = errors.New("controller stopped")
)
