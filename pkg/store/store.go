// Package store holds the authoritative local view of the signed-in user's
// notes. All mutations are optimistic: they succeed locally first and are
// reconciled with the remote store asynchronously by the sync engine.
package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/speaknote/pkg/core"
)

// DefaultEventBuffer is the size of the change-event channel.
const DefaultEventBuffer = 100

// Store maps note ID to Note for a single owner. Notes belonging to other
// users are never cached.
type Store struct {
	mu    sync.RWMutex
	owner string
	notes map[string]core.Note

	// latest remembers the newest remote copy of conflicted notes, so a
	// conflict can be resolved without a second fetch.
	latest map[string]core.Note

	events chan core.Event
	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty store for the given owner. eventBuffer <= 0 uses
// DefaultEventBuffer.
func New(ownerID string, logger *slog.Logger, eventBuffer int) *Store {
	if eventBuffer <= 0 {
		eventBuffer = DefaultEventBuffer
	}
	return &Store{
		owner:  ownerID,
		notes:  make(map[string]core.Note),
		latest: make(map[string]core.Note),
		events: make(chan core.Event, eventBuffer),
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Owner returns the identity this store caches notes for.
func (s *Store) Owner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// Events returns the change-event channel. Events are dropped rather than
// blocking a slow consumer; the store is the source of truth, not the stream.
func (s *Store) Events() <-chan core.Event {
	return s.events
}

// Reset clears the store contents and rebinds it to a new owner. Used on
// identity change and sign-out.
func (s *Store) Reset(ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = ownerID
	s.notes = make(map[string]core.Note)
	s.latest = make(map[string]core.Note)
}

// Load replaces the store contents wholesale after a successful full fetch.
// Every entry becomes clean. Notes owned by someone else are skipped.
func (s *Store) Load(notes []core.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = make(map[string]core.Note, len(notes))
	s.latest = make(map[string]core.Note)
	for _, n := range notes {
		if n.OwnerID != s.owner {
			continue
		}
		n.SyncState = core.StateClean
		n.LastError = ""
		s.notes[n.ID] = n
	}
}

// UpsertLocal inserts or overwrites a note by ID: the optimistic local half
// of create and edit. Title and content are validated here, at the trust
// boundary; network conditions can never fail this call.
//
// The stored copy gets a fresh UpdatedAt and the appropriate pending state:
// pendingCreate while the ID is still locally generated, pendingUpdate once
// the note exists remotely.
func (s *Store) UpsertLocal(n core.Note) (core.Note, error) {
	if err := n.Validate(); err != nil {
		return core.Note{}, err
	}

	s.mu.Lock()
	now := s.now()
	prev, exists := s.notes[n.ID]

	n.OwnerID = s.owner
	n.UpdatedAt = now
	n.LastError = ""
	if exists {
		n.CreatedAt = prev.CreatedAt
		if n.Version == 0 {
			n.Version = prev.Version
		}
	} else if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}

	if n.IsLocal() {
		n.SyncState = core.StatePendingCreate
	} else {
		n.SyncState = core.StatePendingUpdate
	}
	delete(s.latest, n.ID)
	s.notes[n.ID] = n
	s.mu.Unlock()

	if exists {
		s.emit(core.EventModify, n.ID)
	} else {
		s.emit(core.EventCreate, n.ID)
	}
	return n, nil
}

// MarkDeleted flags a note as pendingDelete. It stays visible until the
// remote store confirms the deletion (or the delete resolves locally).
func (s *Store) MarkDeleted(id string) error {
	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok {
		s.mu.Unlock()
		return &core.NotFoundError{ID: id}
	}
	n.SyncState = core.StatePendingDelete
	n.UpdatedAt = s.now()
	s.notes[id] = n
	s.mu.Unlock()

	s.emit(core.EventModify, id)
	return nil
}

// Reconcile applies the outcome of a successful remote operation.
//
// With a remote note it replaces the local entry and marks it clean; if the
// remote ID differs from a temporary local one, the rename happens under the
// lock, so no reader ever observes the note under two IDs. With nil (delete
// confirmed) the entry is purged.
//
// base is the local revision the remote call was based on (zero means
// unconditional). If the entry mutated again while the call was in flight,
// the newer local change is never clobbered: only the remote identity and
// version are adopted, the pending state stays, and Reconcile returns true
// so the caller re-enqueues the note. The same guard covers deletes: an
// entry edited back to life while its delete was in flight is kept and
// flipped to pendingCreate instead of purged.
//
// Acknowledgements that outlive their entry are refused: when the entry is
// gone (sign-out, identity switch) or the remote copy belongs to another
// owner, the store is left untouched.
func (s *Store) Reconcile(id string, remote *core.Note, base time.Time) bool {
	s.mu.Lock()
	if remote == nil {
		cur, existed := s.notes[id]
		if existed && !base.IsZero() && cur.SyncState != core.StatePendingDelete {
			// A local edit resurrected the note while the delete was in
			// flight. The remote copy is gone, so the content must be
			// created anew.
			cur.SyncState = core.StatePendingCreate
			cur.Version = 0
			s.notes[id] = cur
			s.mu.Unlock()
			s.emit(core.EventModify, id)
			return true
		}
		delete(s.notes, id)
		delete(s.latest, id)
		s.mu.Unlock()
		if existed {
			s.emit(core.EventDelete, id)
		}
		return false
	}

	cur, exists := s.notes[id]
	if !exists || remote.OwnerID != s.owner {
		delete(s.latest, id)
		s.mu.Unlock()
		return false
	}
	if !base.IsZero() && cur.Dirty() && !cur.UpdatedAt.Equal(base) {
		// A newer local mutation raced with the remote call. Adopt the
		// durable identity and version, keep the local content pending.
		delete(s.notes, id)
		cur.ID = remote.ID
		cur.Version = remote.Version
		cur.CreatedAt = remote.CreatedAt
		if cur.SyncState == core.StatePendingCreate {
			cur.SyncState = core.StatePendingUpdate
		}
		s.notes[cur.ID] = cur
		s.mu.Unlock()
		s.emit(core.EventModify, cur.ID)
		return true
	}

	n := *remote
	n.SyncState = core.StateClean
	n.LastError = ""
	if n.ID != id {
		delete(s.notes, id)
	}
	delete(s.latest, id)
	delete(s.latest, n.ID)
	s.notes[n.ID] = n
	s.mu.Unlock()

	s.emit(core.EventModify, n.ID)
	return false
}

// MarkConflict flags a note as conflicted, preserving its local content for
// the user to resolve. latest, when known, is remembered for resolution.
func (s *Store) MarkConflict(id string, latest *core.Note) {
	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	n.SyncState = core.StateConflict
	s.notes[id] = n
	if latest != nil {
		s.latest[id] = *latest
	}
	s.mu.Unlock()

	s.emit(core.EventModify, id)
	if s.logger != nil {
		s.logger.Warn("note conflicted", "id", id)
	}
}

// LatestRemote returns the newest known remote copy of a conflicted note.
func (s *Store) LatestRemote(id string) (core.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.latest[id]
	return n, ok
}

// MarkFailed records a permanent sync failure on the note. The pending state
// is kept: local content still differs from the remote, but the engine will
// not retry until a fresh edit re-enqueues the note.
func (s *Store) MarkFailed(id string, err error) {
	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	n.LastError = err.Error()
	s.notes[id] = n
	s.mu.Unlock()

	s.emit(core.EventModify, id)
}

// Resolve prepares a conflicted note for an explicit user decision.
//
// overwrite re-bases the local content on the latest known remote version and
// returns the note in pendingUpdate state, ready to re-enqueue. Otherwise the
// local changes are discarded by adopting the remote copy.
func (s *Store) Resolve(id string, overwrite bool) (core.Note, bool) {
	s.mu.Lock()
	n, ok := s.notes[id]
	if !ok || n.SyncState != core.StateConflict {
		s.mu.Unlock()
		return core.Note{}, false
	}

	latest, known := s.latest[id]
	if overwrite {
		if known {
			n.Version = latest.Version
		}
		n.SyncState = core.StatePendingUpdate
		n.UpdatedAt = s.now()
		delete(s.latest, id)
		s.notes[id] = n
		s.mu.Unlock()
		s.emit(core.EventModify, id)
		return n, true
	}

	if !known {
		// Nothing to fall back to; caller must re-fetch and Reconcile.
		s.mu.Unlock()
		return core.Note{}, false
	}
	s.mu.Unlock()
	s.Reconcile(id, &latest, time.Time{})
	return latest, true
}

// Get returns a copy of the note with the given ID.
func (s *Store) Get(id string) (core.Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	return n, ok
}

// List returns all cached notes ordered by CreatedAt descending (most recent
// first), ties broken by ID. Pending deletes remain visible.
func (s *Store) List() []core.Note {
	s.mu.RLock()
	notes := make([]core.Note, 0, len(s.notes))
	for _, n := range s.notes {
		notes = append(notes, n)
	}
	s.mu.RUnlock()

	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].CreatedAt.Equal(notes[j].CreatedAt) {
			return notes[i].CreatedAt.After(notes[j].CreatedAt)
		}
		return notes[i].ID < notes[j].ID
	})
	return notes
}

// Dirty returns all notes whose state is not clean.
func (s *Store) Dirty() []core.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var dirty []core.Note
	for _, n := range s.notes {
		if n.Dirty() {
			dirty = append(dirty, n)
		}
	}
	return dirty
}

// Merge replaces the store contents with a full remote fetch, preserving
// notes that still carry local changes more recent than the fetched copy.
// The preserved notes are returned so the caller can re-enqueue them.
func (s *Store) Merge(remote []core.Note) []core.Note {
	s.mu.Lock()
	defer s.mu.Unlock()

	var preserved []core.Note
	fresh := make(map[string]core.Note, len(remote))
	for _, n := range remote {
		if n.OwnerID != s.owner {
			continue
		}
		n.SyncState = core.StateClean
		n.LastError = ""
		fresh[n.ID] = n
	}

	for id, n := range s.notes {
		if !n.Dirty() {
			continue
		}
		if rn, ok := fresh[id]; ok && rn.UpdatedAt.After(n.UpdatedAt) {
			// The fetched copy is newer than the local change; last writer wins.
			continue
		}
		fresh[id] = n
		preserved = append(preserved, n)
	}

	s.notes = fresh
	return preserved
}

// Len returns the number of cached notes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

func (s *Store) emit(t core.EventType, id string) {
	s.mu.RLock()
	now := s.now
	s.mu.RUnlock()
	e := core.Event{Type: t, ID: id, Timestamp: now().Unix()}
	select {
	case s.events <- e:
	default:
		if s.logger != nil {
			s.logger.Debug("event dropped (slow consumer)", "event", e.String())
		}
	}
}
