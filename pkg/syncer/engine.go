// Package syncer drives every note whose state is not clean toward clean (or
// a failure the user must resolve), against a remote store that offers only
// primitive per-note operations.
//
// Local mutations enqueue the note ID; queued work for the same ID coalesces
// into the single operation its current sync state implies. One task is in
// flight per note at any time, preserving per-note ordering; different notes
// sync concurrently, optionally bounded by a semaphore.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"golang.org/x/sync/semaphore"

	"github.com/aretw0/speaknote/pkg/core"
	"github.com/aretw0/speaknote/pkg/store"
)

// DefaultRequestTimeout bounds each remote call; on expiry the call is
// classified transient and retried with backoff.
const DefaultRequestTimeout = 10 * time.Second

// Op is the reconciliation operation a task performs.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Task is one outstanding reconciliation unit for a note.
type Task struct {
	NoteID    string
	Op        Op
	Attempts  int
	LastError error
}

// Config holds the tunables of the engine.
type Config struct {
	Logger *slog.Logger

	// MaxConcurrency bounds in-flight remote calls across notes.
	// Zero or negative means unbounded.
	MaxConcurrency int64

	// Backoff is the retry policy for transient failures.
	// Zero value means DefaultBackoff.
	Backoff Backoff

	// RequestTimeout bounds each remote call. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Engine reconciles the local note store with the remote store.
type Engine struct {
	store   *store.Store
	remote  core.RemoteStore
	logger  *slog.Logger
	backoff Backoff
	timeout time.Duration
	sem     *semaphore.Weighted
	maxConc int64

	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[string]struct{}
	inFlight map[string]struct{}
	started  bool
	ctx      context.Context
}

// New creates an engine over the given store and remote. It does no work
// until Start.
func New(st *store.Store, remote core.RemoteStore, cfg Config) *Engine {
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	e := &Engine{
		store:    st,
		remote:   remote,
		logger:   cfg.Logger,
		backoff:  cfg.Backoff,
		timeout:  cfg.RequestTimeout,
		pending:  make(map[string]struct{}),
		inFlight: make(map[string]struct{}),
	}
	if cfg.MaxConcurrency > 0 {
		e.sem = semaphore.NewWeighted(cfg.MaxConcurrency)
		e.maxConc = cfg.MaxConcurrency
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Start arms the engine: queued work begins dispatching, and work enqueued
// from now on dispatches immediately. The context bounds the engine's
// lifetime; cancelling it abandons in-flight tasks, leaving their notes
// pending for the next start.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.ctx = ctx

	go func() {
		<-ctx.Done()
		e.cond.Broadcast()
	}()

	for id := range e.pending {
		e.dispatchLocked(id)
	}
}

// Enqueue records that the note needs reconciliation. Repeated enqueues for
// the same note coalesce: the operation is derived from the note's sync
// state at dispatch time, so a delete supersedes a queued create or update.
//
// A delete of a note whose create never reached the remote store resolves
// locally with no network call; there is nothing to delete remotely.
func (e *Engine) Enqueue(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inFlight[id]; !busy {
		n, ok := e.store.Get(id)
		if !ok {
			delete(e.pending, id)
			return
		}
		if n.SyncState == core.StatePendingDelete && n.IsLocal() {
			delete(e.pending, id)
			e.store.Reconcile(id, nil, time.Time{})
			return
		}
	}

	e.pending[id] = struct{}{}
	if e.started {
		e.dispatchLocked(id)
	}
}

// Reset drops all queued work. Used on sign-out; in-flight tasks find their
// notes gone and finish as no-ops.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = make(map[string]struct{})
	e.cond.Broadcast()
}

// Wait blocks until no work is queued or in flight, or the context ends.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			e.cond.Broadcast()
		case <-done:
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.pending) > 0 || len(e.inFlight) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.cond.Wait()
	}
	return nil
}

// Resync fetches all notes owned by the current identity and replaces the
// store contents, preserving and re-enqueueing local changes the fetch does
// not supersede. Triggered on engine start, identity change, and reconnect
// after an extended offline period.
func (e *Engine) Resync(ctx context.Context) error {
	owner := e.store.Owner()
	if owner == "" {
		return core.ErrSignedOut
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	notes, err := e.remote.QueryByOwner(callCtx, owner)
	if err != nil {
		return fmt.Errorf("full fetch failed: %w", err)
	}

	preserved := e.store.Merge(notes)
	for _, n := range preserved {
		e.Enqueue(n.ID)
	}
	if e.logger != nil {
		e.logger.Info("resync completed", "owner", owner, "fetched", len(notes), "preserved", len(preserved))
	}
	return nil
}

// ResolveOverwrite re-enqueues a conflicted note as an update against the
// latest known remote version: the user chose to keep the local content. If
// the latest remote copy is not cached, it is re-fetched first, so the update
// goes out with a current base version instead of bouncing off a second
// conflict.
func (e *Engine) ResolveOverwrite(ctx context.Context, id string) error {
	if _, known := e.store.LatestRemote(id); !known {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		notes, err := e.remote.QueryByOwner(callCtx, e.store.Owner())
		cancel()
		if err != nil {
			return fmt.Errorf("failed to re-fetch for conflict resolution: %w", err)
		}
		for i := range notes {
			if notes[i].ID == id {
				e.store.MarkConflict(id, &notes[i])
				break
			}
		}
	}

	n, ok := e.store.Resolve(id, true)
	if !ok {
		return &core.NotFoundError{ID: id}
	}
	e.Enqueue(n.ID)
	return nil
}

// ResolveDiscard drops the local changes of a conflicted note and adopts the
// remote copy: the user chose the remote version. If the latest remote copy
// is not cached, it is re-fetched.
func (e *Engine) ResolveDiscard(ctx context.Context, id string) error {
	if _, ok := e.store.Resolve(id, false); ok {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	notes, err := e.remote.QueryByOwner(callCtx, e.store.Owner())
	if err != nil {
		return fmt.Errorf("failed to re-fetch for conflict resolution: %w", err)
	}
	for i := range notes {
		if notes[i].ID == id {
			e.store.Reconcile(id, &notes[i], time.Time{})
			return nil
		}
	}
	// Deleted remotely while conflicted; nothing to keep.
	e.store.Reconcile(id, nil, time.Time{})
	return nil
}

// dispatchLocked spawns a worker for the note unless one is already running.
// Caller holds e.mu.
func (e *Engine) dispatchLocked(id string) {
	if _, busy := e.inFlight[id]; busy {
		return
	}
	e.inFlight[id] = struct{}{}

	noteID := id
	lifecycle.Go(e.ctx, func(ctx context.Context) error {
		e.worker(ctx, noteID)
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		if e.logger != nil {
			e.logger.Error("sync worker panic", "id", noteID, "error", err)
		}
		e.mu.Lock()
		delete(e.inFlight, noteID)
		e.cond.Broadcast()
		e.mu.Unlock()
	}))
}

// worker drains queued work for one note, strictly in order. It exits when
// nothing is queued for the note or the engine context ends.
func (e *Engine) worker(ctx context.Context, id string) {
	for {
		e.mu.Lock()
		if _, ok := e.pending[id]; !ok || ctx.Err() != nil {
			delete(e.inFlight, id)
			e.cond.Broadcast()
			e.mu.Unlock()
			return
		}
		delete(e.pending, id)
		e.mu.Unlock()

		next, ok := e.process(ctx, id)
		if !ok {
			// Abandoned mid-flight; the note stays pending* and is retried
			// on the next engine start.
			e.mu.Lock()
			delete(e.inFlight, id)
			e.cond.Broadcast()
			e.mu.Unlock()
			return
		}
		if next != id {
			// The remote assigned a durable ID; carry queued work over.
			e.mu.Lock()
			if _, p := e.pending[id]; p {
				delete(e.pending, id)
				e.pending[next] = struct{}{}
			}
			delete(e.inFlight, id)
			e.inFlight[next] = struct{}{}
			e.mu.Unlock()
			id = next
		}
	}
}

// process performs one reconciliation task to a terminal outcome, retrying
// transient failures with backoff. It returns the note's (possibly renamed)
// ID, and false if the task was abandoned due to context cancellation.
func (e *Engine) process(ctx context.Context, id string) (string, bool) {
	task := Task{NoteID: id}

	for {
		n, ok := e.store.Get(id)
		if !ok {
			return id, true
		}

		switch n.SyncState {
		case core.StatePendingCreate:
			task.Op = OpCreate
		case core.StatePendingUpdate:
			task.Op = OpUpdate
		case core.StatePendingDelete:
			if n.IsLocal() {
				// The create this delete supersedes was never sent.
				e.store.Reconcile(id, nil, time.Time{})
				return id, true
			}
			task.Op = OpDelete
		default:
			// Clean or conflicted: nothing for the engine to do.
			return id, true
		}

		if e.sem != nil {
			if err := e.sem.Acquire(ctx, 1); err != nil {
				return id, false
			}
		}
		nextID, err := e.call(ctx, n, task.Op)
		if e.sem != nil {
			e.sem.Release(1)
		}
		if err == nil {
			return nextID, true
		}

		task.Attempts++
		task.LastError = err

		switch core.Classify(err) {
		case core.FailureTransient:
			delay := e.backoff.Delay(task.Attempts)
			if e.logger != nil {
				e.logger.Debug("transient sync failure, backing off",
					"id", id, "op", string(task.Op), "attempt", task.Attempts, "delay", delay, "error", err)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return id, false
			}
			// Loop: re-read the note, a newer mutation may have changed the
			// operation (e.g. an update became a delete while offline).

		case core.FailureConflict:
			var conflict *core.ConflictError
			var latest *core.Note
			if errors.As(err, &conflict) {
				latest = conflict.Latest
			}
			e.store.MarkConflict(id, latest)
			if e.logger != nil {
				e.logger.Warn("sync conflict, awaiting user resolution", "id", id, "op", string(task.Op))
			}
			return id, true

		default:
			e.store.MarkFailed(id, err)
			if e.logger != nil {
				e.logger.Error("permanent sync failure, task dropped",
					"id", id, "op", string(task.Op), "error", err)
			}
			return id, true
		}
	}
}

// call performs one remote round trip and applies a successful outcome to
// the store. It returns the note's ID after the call (renamed on create).
func (e *Engine) call(ctx context.Context, n core.Note, op Op) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	switch op {
	case OpCreate:
		res, err := e.remote.Create(callCtx, n)
		if err != nil {
			return n.ID, err
		}
		rn := n
		rn.ID = res.ID
		rn.Version = res.Version
		rn.CreatedAt = res.CreatedAt
		rn.UpdatedAt = res.CreatedAt
		if res.ID != n.ID {
			// Claim the durable ID before the rename becomes visible in the
			// store, so a concurrent enqueue for it cannot dispatch a second
			// worker while this one is still finishing.
			e.mu.Lock()
			e.inFlight[res.ID] = struct{}{}
			e.mu.Unlock()
		}
		if e.store.Reconcile(n.ID, &rn, n.UpdatedAt) {
			e.markPending(res.ID)
		}
		return res.ID, nil

	case OpUpdate:
		res, err := e.remote.Update(callCtx, n.ID, n.Version, core.Fields{Title: n.Title, Content: n.Content})
		if err != nil {
			return n.ID, err
		}
		rn := n
		rn.Version = res.Version
		rn.UpdatedAt = res.UpdatedAt
		if e.store.Reconcile(n.ID, &rn, n.UpdatedAt) {
			e.markPending(n.ID)
		}
		return n.ID, nil

	case OpDelete:
		if err := e.remote.Delete(callCtx, n.ID, n.Version); err != nil {
			return n.ID, err
		}
		if e.store.Reconcile(n.ID, nil, n.UpdatedAt) {
			// Edited back to life while the delete was in flight; the note
			// must be created anew.
			e.markPending(n.ID)
		}
		return n.ID, nil
	}
	return n.ID, fmt.Errorf("unknown operation: %s", op)
}

func (e *Engine) markPending(id string) {
	e.mu.Lock()
	e.pending[id] = struct{}{}
	e.mu.Unlock()
}
