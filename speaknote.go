package speaknote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/google/uuid"

	"github.com/aretw0/speaknote/internal/platform"
	eventsource "github.com/aretw0/speaknote/pkg/adapters/lifecycle"
	"github.com/aretw0/speaknote/pkg/capture"
	"github.com/aretw0/speaknote/pkg/core"
	"github.com/aretw0/speaknote/pkg/store"
	"github.com/aretw0/speaknote/pkg/syncer"
)

// --- Types ---

// Note is a public alias for the core note entity.
type Note = core.Note

// Event is a public alias for store change events.
type Event = core.Event

// Identity is a public alias for the authenticated user.
type Identity = core.Identity

// IdentityProvider supplies the current authenticated identity.
type IdentityProvider = core.IdentityProvider

// TranscriptionSource supplies transcription fragments during capture.
type TranscriptionSource = core.TranscriptionSource

// Fragment is one piece of transcribed speech.
type Fragment = core.Fragment

// Session is a public alias for a capture session.
type Session = capture.Session

// RemoteStore is the port a remote backend must implement.
type RemoteStore = core.RemoteStore

// Backoff is the retry policy for transient sync failures.
type Backoff = syncer.Backoff

// --- Configuration ---

// Option defines a functional option for configuring the engine.
type Option = platform.Option

// WithLogger sets the logger for all components.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithRemote allows injecting a custom remote store adapter.
func WithRemote(remote core.RemoteStore) Option {
	return platform.WithRemote(remote)
}

// WithAdapter selects the remote store adapter by name ("fs", "sqlite", "memory").
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithAutoInit enables automatic initialization of the backing store.
func WithAutoInit(auto bool) Option {
	return platform.WithAutoInit(auto)
}

// WithIgnorePatterns sets extra globs the fs adapter's watcher skips.
func WithIgnorePatterns(patterns ...string) Option {
	return platform.WithIgnorePatterns(patterns...)
}

// WithMaxConcurrency bounds concurrent remote calls across notes.
func WithMaxConcurrency(n int64) Option {
	return platform.WithMaxConcurrency(n)
}

// WithBackoff overrides the retry policy for transient sync failures.
func WithBackoff(b Backoff) Option {
	return platform.WithBackoff(b)
}

// WithRequestTimeout bounds each remote call.
func WithRequestTimeout(d time.Duration) Option {
	return platform.WithRequestTimeout(d)
}

// WithEventBuffer sets the size of the store's change-event channel.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// --- Service ---

// Service is the assembled note engine: local store, sync engine and capture
// recorder wired together against one remote store and one identity provider.
type Service struct {
	store    *store.Store
	engine   *syncer.Engine
	recorder *capture.Recorder
	identity core.IdentityProvider
	remote   core.RemoteStore
	logger   *slog.Logger

	cancel context.CancelFunc
}

// New assembles a Service. The 'uri' argument is adapter-specific: a directory
// for the fs adapter, a database file for sqlite, ignored for memory.
//
// The service does no background work until Start.
func New(uri string, identity core.IdentityProvider, source core.TranscriptionSource, opts ...Option) (*Service, error) {
	remote, settings, err := platform.Init(uri, opts...)
	if err != nil {
		return nil, err
	}

	owner := ""
	if id := identity.CurrentIdentity(); id != nil {
		owner = id.ID
	}

	st := store.New(owner, settings.Logger, settings.EventBuffer)
	engine := syncer.New(st, remote, syncer.Config{
		Logger:         settings.Logger,
		MaxConcurrency: settings.MaxConcurrency,
		Backoff:        settings.Backoff,
		RequestTimeout: settings.RequestTimeout,
	})

	s := &Service{
		store:    st,
		engine:   engine,
		identity: identity,
		remote:   remote,
		logger:   settings.Logger,
	}
	s.recorder = capture.NewRecorder(source, s.commitNote, identity.CurrentIdentity, settings.Logger)
	return s, nil
}

// commitNote is the sink for committed capture sessions.
func (s *Service) commitNote(n core.Note) error {
	if s.store.Owner() == "" {
		return core.ErrSignedOut
	}
	saved, err := s.store.UpsertLocal(n)
	if err != nil {
		return err
	}
	s.engine.Enqueue(saved.ID)
	return nil
}

// Start brings the service online: the sync engine starts dispatching,
// identity changes are watched, remote change signals (if the adapter offers
// them) trigger resyncs, and an initial full resync runs for the signed-in
// user. The context bounds all background work.
//
// A failed initial resync is not fatal: the service comes up on the local
// cache and catches up on the next successful sync.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.engine.Start(runCtx)

	identities, err := s.identity.Watch(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to watch identity: %w", err)
	}
	lifecycle.Go(runCtx, func(ctx context.Context) error {
		for id := range identities {
			s.onIdentityChange(ctx, id)
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		if s.logger != nil {
			s.logger.Error("identity watcher stopped", "error", err)
		}
	}))

	if r, ok := s.remote.(core.Resyncable); ok {
		signals, err := r.ResyncSignals(runCtx)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("remote change signals unavailable", "error", err)
			}
		} else {
			lifecycle.Go(runCtx, func(ctx context.Context) error {
				for range signals {
					if err := s.engine.Resync(ctx); err != nil && s.logger != nil {
						s.logger.Warn("resync after remote change failed", "error", err)
					}
				}
				return nil
			}, lifecycle.WithErrorHandler(func(err error) {
				if s.logger != nil {
					s.logger.Error("resync watcher stopped", "error", err)
				}
			}))
		}
	}

	if s.store.Owner() != "" {
		if err := s.engine.Resync(runCtx); err != nil && s.logger != nil {
			s.logger.Warn("initial resync failed, serving local cache", "error", err)
		}
	}
	return nil
}

// onIdentityChange rebinds the store to the new owner. Sign-out clears the
// cache; sign-in triggers a full resync.
func (s *Service) onIdentityChange(ctx context.Context, id *core.Identity) {
	owner := ""
	if id != nil {
		owner = id.ID
	}
	if owner == s.store.Owner() {
		return
	}

	s.engine.Reset()
	s.store.Reset(owner)
	if s.logger != nil {
		s.logger.Info("identity changed", "signed_in", owner != "")
	}
	if owner == "" {
		return
	}
	if err := s.engine.Resync(ctx); err != nil && s.logger != nil {
		s.logger.Warn("resync after sign-in failed", "error", err)
	}
}

// Close stops all background work and releases the remote store.
func (s *Service) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if c, ok := s.remote.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// --- Capture ---

// StartCapture begins a new voice-capture session. Only one session can be
// active at a time.
func (s *Service) StartCapture(ctx context.Context) (*capture.Session, error) {
	return s.recorder.Start(ctx)
}

// ActiveCapture returns the currently active capture session, or nil.
func (s *Service) ActiveCapture() *capture.Session {
	return s.recorder.Active()
}

// --- Notes ---

// SaveNote creates or edits a note directly, bypassing capture. An empty id
// creates a new note. The mutation is optimistic: it succeeds locally and is
// reconciled with the remote store in the background.
func (s *Service) SaveNote(id, title, content string) (core.Note, error) {
	if s.store.Owner() == "" {
		return core.Note{}, core.ErrSignedOut
	}

	n := core.Note{ID: id, Title: title, Content: content}
	if id == "" {
		n.ID = core.LocalIDPrefix + uuid.NewString()
	} else if prev, ok := s.store.Get(id); ok {
		n.Version = prev.Version
	}

	saved, err := s.store.UpsertLocal(n)
	if err != nil {
		return core.Note{}, err
	}
	s.engine.Enqueue(saved.ID)
	return saved, nil
}

// DeleteNote flags a note for deletion. It stays visible until the remote
// store confirms.
func (s *Service) DeleteNote(id string) error {
	if err := s.store.MarkDeleted(id); err != nil {
		return err
	}
	s.engine.Enqueue(id)
	return nil
}

// Get returns the note with the given ID.
func (s *Service) Get(id string) (core.Note, bool) {
	return s.store.Get(id)
}

// Notes returns all cached notes, most recent first.
func (s *Service) Notes() []core.Note {
	return s.store.List()
}

// Search returns the notes whose title or content contains the query,
// case-insensitively, most recent first.
func (s *Service) Search(query string) []core.Note {
	return s.store.Search(query)
}

// Events returns the store's change-event channel.
func (s *Service) Events() <-chan core.Event {
	return s.store.Events()
}

// EventSource adapts the change events to the generic lifecycle.Source
// contract, for hosts that run a lifecycle-managed event loop. Passing event
// types narrows the stream to those types.
func (s *Service) EventSource(types ...core.EventType) lifecycle.Source {
	return eventsource.NewSource(s.store, types...)
}

// --- Synchronization ---

// Resync forces a full fetch from the remote store.
func (s *Service) Resync(ctx context.Context) error {
	return s.engine.Resync(ctx)
}

// Wait blocks until no sync work is queued or in flight.
func (s *Service) Wait(ctx context.Context) error {
	return s.engine.Wait(ctx)
}

// ResolveOverwrite resolves a conflict by keeping the local content.
func (s *Service) ResolveOverwrite(ctx context.Context, id string) error {
	return s.engine.ResolveOverwrite(ctx, id)
}

// ResolveDiscard resolves a conflict by adopting the remote copy.
func (s *Service) ResolveDiscard(ctx context.Context, id string) error {
	return s.engine.ResolveDiscard(ctx, id)
}

// --- Introspection ---

// Store exposes the underlying note store for observability.
func (s *Service) Store() *store.Store {
	return s.store
}

// Engine exposes the underlying sync engine for observability.
func (s *Service) Engine() *syncer.Engine {
	return s.engine
}
