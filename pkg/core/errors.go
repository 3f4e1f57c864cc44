package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors.
var (
	// ErrInvalidTransition signals a programming-contract violation in the
	// capture state machine. It is never retried or silently ignored.
	ErrInvalidTransition = errors.New("invalid capture state transition")

	// ErrSessionActive is returned when starting a capture session while
	// another one is still active. It is a contract violation, so it wraps
	// ErrInvalidTransition.
	ErrSessionActive = fmt.Errorf("%w: a capture session is already active", ErrInvalidTransition)

	// ErrSignedOut is returned by operations that require an authenticated
	// identity when none is present.
	ErrSignedOut = errors.New("no authenticated identity")
)

// ValidationError reports an empty title or content at a trust boundary
// (commit, direct edit). It blocks the local mutation synchronously.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports that the remote store rejected a mutation because it
// was based on a stale version. Latest carries the current remote copy when
// the store can provide it, so the caller can resolve without a second fetch.
type ConflictError struct {
	ID     string
	Latest *Note
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("note %s: remote version is newer than base", e.ID)
}

// NotFoundError reports an update or delete against a note the remote store
// does not know. It is classified permanent.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("note %s not found", e.ID)
}

// TransientError wraps a network or timeout failure that should be retried
// with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FailureClass buckets a remote-store error for the sync engine.
type FailureClass int

const (
	FailureTransient FailureClass = iota
	FailureConflict
	FailurePermanent
)

// Classify buckets an error returned by a RemoteStore call.
//
// Conflicts and not-founds are explicit types. Timeouts, cancellations and
// net errors are transient. Everything else is permanent: the remote rejected
// the payload itself, so retrying the same bytes cannot succeed.
func Classify(err error) FailureClass {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return FailureConflict
	}
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return FailurePermanent
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return FailureTransient
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}
	return FailurePermanent
}
