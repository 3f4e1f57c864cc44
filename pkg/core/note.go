package core

import (
	"strings"
	"time"
)

// LocalIDPrefix marks note IDs that were generated locally and have not yet
// been confirmed by the remote store. They are replaced by the remote-assigned
// ID on the first successful create.
const LocalIDPrefix = "local-"

// SyncState tracks how a cached note relates to the remote store.
type SyncState string

const (
	StateClean         SyncState = "clean"
	StatePendingCreate SyncState = "pendingCreate"
	StatePendingUpdate SyncState = "pendingUpdate"
	StatePendingDelete SyncState = "pendingDelete"
	StateConflict      SyncState = "conflict"
)

// Note is the central entity of the domain.
// It represents one voice note owned by a single user.
type Note struct {
	ID        string
	Title     string
	Content   string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Version is the remote revision this copy is based on. It is the
	// baseVersion sent with updates and deletes for optimistic concurrency.
	// Zero means the note has never been accepted by the remote store.
	Version int64

	SyncState SyncState

	// LastError holds the message of the last permanent sync failure, so the
	// UI can show an error badge. Cleared on the next accepted mutation.
	LastError string
}

// IsLocal reports whether the note still carries a locally generated ID,
// i.e. its create has not yet been acknowledged by the remote store.
func (n Note) IsLocal() bool {
	return strings.HasPrefix(n.ID, LocalIDPrefix)
}

// Dirty reports whether the note has local changes awaiting reconciliation.
func (n Note) Dirty() bool {
	return n.SyncState != StateClean
}

// Validate checks the commit-time invariants: title and content must be
// non-empty after trimming.
func (n Note) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(n.Content) == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	return nil
}

// EventType represents the type of change in the note store.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event represents a change in the note store, delivered to observers.
type Event struct {
	Type      EventType
	ID        string
	Timestamp int64 // Unix timestamp
}

// String implements fmt.Stringer (and the lifecycle event contract).
func (e Event) String() string {
	return string(e.Type) + " " + e.ID
}
