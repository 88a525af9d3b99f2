package service

import (
	"errors"
	"fmt"

	"storygen/backend/internal/repository"
)

// Failure taxonomy shared by every story operation. Callers match with
// errors.Is; the API layer maps each one to a distinct status and code.
var (
	ErrNotFound            = errors.New("session not found")
	ErrUpstreamUnavailable = errors.New("capability unavailable")
	ErrEncodingFault       = errors.New("character encoding fault")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrCollaboratorFailure = errors.New("collaborator failure")
	ErrRevisionConflict    = errors.New("session revision conflict")
)

// CollaboratorError carries the diagnostic output of a failed external
// collaborator (image renderer, muxer, narrator).
type CollaboratorError struct {
	Collaborator string
	Diagnostic   string
	Err          error
}

func (e *CollaboratorError) Error() string {
	if e.Diagnostic != "" {
		return fmt.Sprintf("%s failed: %s", e.Collaborator, e.Diagnostic)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Collaborator, e.Err)
	}
	return e.Collaborator + " failed"
}

// Unwrap lets errors.Is match both ErrCollaboratorFailure and the cause.
func (e *CollaboratorError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCollaboratorFailure}
	}
	return []error{ErrCollaboratorFailure, e.Err}
}

// storeError translates repository sentinels into the service taxonomy.
func storeError(err error, sessionID string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	case errors.Is(err, repository.ErrRevisionConflict):
		return fmt.Errorf("%w: %s was modified concurrently", ErrRevisionConflict, sessionID)
	}
	return err
}

func unavailable(capability, hint string) error {
	return fmt.Errorf("%w: %s. %s", ErrUpstreamUnavailable, capability, hint)
}

func precondition(msg string) error {
	return fmt.Errorf("%w: %s", ErrPreconditionFailed, msg)
}
