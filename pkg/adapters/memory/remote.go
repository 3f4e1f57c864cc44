// Package memory provides an in-memory RemoteStore. It backs tests and the
// CLI demo mode, and doubles as the reference behavior for the other
// adapters: version-checked updates and deletes, owner-scoped queries.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/speaknote/pkg/core"
)

// Remote implements core.RemoteStore over a map.
type Remote struct {
	mu    sync.Mutex
	notes map[string]core.Note
	seq   int
	now   func() time.Time

	// failures are injected errors consumed one per call, in order.
	failures []error
	calls    map[string]int
}

// New creates an empty in-memory remote store.
func New() *Remote {
	return &Remote{
		notes: make(map[string]core.Note),
		now:   time.Now,
		calls: make(map[string]int),
	}
}

// SetClock overrides the time source. Intended for tests.
func (r *Remote) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// FailNext queues errors to be returned by upcoming calls, one per call.
// Use core's error types to exercise the engine's classification paths.
func (r *Remote) FailNext(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, errs...)
}

// Calls returns how many times the given operation reached the store,
// including calls that failed via injection.
func (r *Remote) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *Remote) takeFailure(op string) error {
	r.calls[op]++
	if len(r.failures) == 0 {
		return nil
	}
	err := r.failures[0]
	r.failures = r.failures[1:]
	return err
}

// Create persists a new note and assigns a durable ID.
func (r *Remote) Create(ctx context.Context, n core.Note) (core.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return core.CreateResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.takeFailure("create"); err != nil {
		return core.CreateResult{}, err
	}

	// Skip ids already taken by seeded notes.
	var id string
	for {
		r.seq++
		id = fmt.Sprintf("N%d", r.seq)
		if _, taken := r.notes[id]; !taken {
			break
		}
	}
	now := r.now()

	stored := n
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Version = 1
	stored.SyncState = core.StateClean
	stored.LastError = ""
	r.notes[id] = stored

	return core.CreateResult{ID: id, CreatedAt: now, Version: 1}, nil
}

// Update applies fields if baseVersion matches the stored version.
func (r *Remote) Update(ctx context.Context, id string, baseVersion int64, fields core.Fields) (core.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return core.UpdateResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.takeFailure("update"); err != nil {
		return core.UpdateResult{}, err
	}

	stored, ok := r.notes[id]
	if !ok {
		return core.UpdateResult{}, &core.NotFoundError{ID: id}
	}
	if stored.Version != baseVersion {
		latest := stored
		return core.UpdateResult{}, &core.ConflictError{ID: id, Latest: &latest}
	}

	stored.Title = fields.Title
	stored.Content = fields.Content
	stored.UpdatedAt = r.now()
	stored.Version++
	r.notes[id] = stored

	return core.UpdateResult{UpdatedAt: stored.UpdatedAt, Version: stored.Version}, nil
}

// Delete removes a note if baseVersion matches.
func (r *Remote) Delete(ctx context.Context, id string, baseVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.takeFailure("delete"); err != nil {
		return err
	}

	stored, ok := r.notes[id]
	if !ok {
		return &core.NotFoundError{ID: id}
	}
	if stored.Version != baseVersion {
		latest := stored
		return &core.ConflictError{ID: id, Latest: &latest}
	}
	delete(r.notes, id)
	return nil
}

// QueryByOwner returns all notes owned by the given identity.
func (r *Remote) QueryByOwner(ctx context.Context, ownerID string) ([]core.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.takeFailure("query"); err != nil {
		return nil, err
	}

	var notes []core.Note
	for _, n := range r.notes {
		if n.OwnerID == ownerID {
			notes = append(notes, n)
		}
	}
	return notes, nil
}

// Seed inserts notes directly, bypassing version checks. Intended for tests.
func (r *Remote) Seed(notes ...core.Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range notes {
		if n.Version == 0 {
			n.Version = 1
		}
		r.notes[n.ID] = n
	}
}

// Mutate applies an out-of-band change to a stored note, as another device
// would: it bumps the version. Intended for tests exercising conflicts.
func (r *Remote) Mutate(id string, fields core.Fields) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.notes[id]
	if !ok {
		return false
	}
	stored.Title = fields.Title
	stored.Content = fields.Content
	stored.UpdatedAt = r.now()
	stored.Version++
	r.notes[id] = stored
	return true
}

var _ core.RemoteStore = (*Remote)(nil)
