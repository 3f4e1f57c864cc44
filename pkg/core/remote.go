package core

import (
	"context"
	"time"
)

// CreateResult is the remote store's acknowledgement of a create.
type CreateResult struct {
	ID        string
	CreatedAt time.Time
	Version   int64
}

// UpdateResult is the remote store's acknowledgement of an update.
type UpdateResult struct {
	UpdatedAt time.Time
	Version   int64
}

// Fields carries the mutable attributes of a note for an update call.
type Fields struct {
	Title   string
	Content string
}

// RemoteStore defines the contract with the durable authoritative store.
//
// The store offers only primitive per-note operations with no transactional
// batching. Update and Delete take the base version the caller last observed;
// a mismatch yields ConflictError. Any call may fail with a transient
// network error. Adhering to this interface keeps the engine independent of
// the backing service (in-memory, filesystem, SQLite, a hosted API).
type RemoteStore interface {
	// Create persists a new note and assigns its durable identity.
	Create(ctx context.Context, n Note) (CreateResult, error)

	// Update applies fields to an existing note if baseVersion is current.
	Update(ctx context.Context, id string, baseVersion int64, fields Fields) (UpdateResult, error)

	// Delete removes a note if baseVersion is current.
	Delete(ctx context.Context, id string, baseVersion int64) error

	// QueryByOwner returns all notes owned by the given identity.
	QueryByOwner(ctx context.Context, ownerID string) ([]Note, error)
}

// Resyncable is implemented by remote adapters that can detect out-of-band
// changes (e.g. another process writing the same backing files) and ask the
// engine for a full resynchronization.
type Resyncable interface {
	// ResyncSignals returns a channel that receives a value whenever the
	// adapter believes the local view may be stale.
	ResyncSignals(ctx context.Context) (<-chan struct{}, error)
}
