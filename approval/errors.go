/*
errors.go - Error types for the approval coordinator and engine

ERROR CATEGORIES:
  1. Client-side (never reach the network):
     ValidationError      - local precondition failure (empty reason, empty selection)
     SelectionDeniedError - attempted selection of a non-actionable record
     ErrBusy              - the same control already has a request in flight
  2. Remote:
     RemoteError          - any failure of an approval/rejection/bulk/mark-paid call
  3. Engine (backend):
     ErrRecordNotFound, ErrForbidden, ErrNotActionable, ErrInvalidTransition

USAGE:
  if errors.Is(err, approval.ErrValidation) {
      // show the message, nothing was sent
  }

  var re *approval.RemoteError
  if errors.As(err, &re) {
      notify(re.UserMessage())
  }
*/
package approval

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation      = errors.New("validation failed")
	ErrSelectionDenied = errors.New("selection denied")
	ErrRemote          = errors.New("remote call failed")

	// ErrBusy is returned when an action for the same record (or the bulk
	// control) is still in flight.
	ErrBusy = errors.New("action already in progress")

	ErrRecordNotFound = errors.New("record not found")

	// ErrForbidden is returned when the actor's role cannot perform the
	// action at the requested level at all.
	ErrForbidden = errors.New("forbidden")

	// ErrNotActionable is returned when the role is allowed in principle but
	// the record is not waiting on the actor's level.
	ErrNotActionable = errors.New("record is not actionable at this level")

	ErrInvalidTransition = errors.New("invalid status transition")

	ErrUnknownKind = errors.New("unknown record kind")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError is a local precondition failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// SelectionDeniedError is returned by Selection.ToggleOne for records the
// viewer cannot act on.
type SelectionDeniedError struct {
	ID     RecordID
	Reason string
}

func (e *SelectionDeniedError) Error() string {
	return fmt.Sprintf("cannot select %s: %s", e.ID, e.Reason)
}

func (e *SelectionDeniedError) Unwrap() error { return ErrSelectionDenied }

// RemoteError wraps a failed call to the approval service. Message is the
// server-provided message, if any.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": remote call failed"
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// UserMessage prefers the server's message and falls back to a generic one.
func (e *RemoteError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Failed to %s. Please try again.", e.Op)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether err was caused by the caller's input or
// permissions rather than a server fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrSelectionDenied) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotActionable) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrUnknownKind)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}
