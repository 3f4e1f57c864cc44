// Package capture owns the lifecycle of a voice-capture session: the state
// machine that turns a stream of transcription fragments into a committed
// note. One session is active at a time; the Recorder enforces exclusivity.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/speaknote/pkg/core"
)

// State is the lifecycle phase of a capture session.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateReviewing State = "reviewing"
	StateCommitted State = "committed"
	StateDiscarded State = "discarded"
)

// CommitFunc receives the note built by a successful Commit. The composition
// root wires it to the entity store and the sync engine.
type CommitFunc func(n core.Note) error

// Session is one ephemeral capture session. It is created by Recorder.Start
// and destroyed (terminal state) on Commit or Discard.
type Session struct {
	mu        sync.Mutex
	state     State
	fragments []string
	startedAt time.Time

	cancel context.CancelFunc // closes the transcription stream
	done   chan struct{}      // closed when the fragment pump exits

	recorder *Recorder
	logger   *slog.Logger
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartedAt returns when the session began recording.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Done is closed when the transcription stream has drained and every
// fragment is accumulated. Finite sources (files, scripts) close their stream
// on exhaustion; for live sources it closes after Stop or Discard.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Text returns the accumulated transcription text.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.fragments, "")
}

// appendFragment appends one fragment while recording. Fragments arriving
// after Stop or Discard are dropped: the subscription is already closing.
func (s *Session) appendFragment(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return
	}
	s.fragments = append(s.fragments, text)
}

// Stop closes the transcription stream and moves to Reviewing.
// An empty accumulated text is not an error; the reviewer decides.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return fmt.Errorf("%w: stop from %s", core.ErrInvalidTransition, s.state)
	}
	s.state = StateReviewing
	s.cancel()
	return nil
}

// EditText replaces the accumulated text wholesale. Valid only in Reviewing.
func (s *Session) EditText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewing {
		return fmt.Errorf("%w: edit from %s", core.ErrInvalidTransition, s.state)
	}
	s.fragments = []string{text}
	return nil
}

// Commit validates title and text, builds a Note in pendingCreate state,
// hands it to the commit sink and moves to Committed. It returns the local
// (temporary) note ID; the remote store assigns the durable one later.
func (s *Session) Commit(title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewing {
		return "", fmt.Errorf("%w: commit from %s", core.ErrInvalidTransition, s.state)
	}

	now := s.recorder.now()
	n := core.Note{
		ID:        core.LocalIDPrefix + uuid.NewString(),
		Title:     title,
		Content:   strings.Join(s.fragments, ""),
		CreatedAt: now,
		UpdatedAt: now,
		SyncState: core.StatePendingCreate,
	}
	if identity := s.recorder.identity(); identity != nil {
		n.OwnerID = identity.ID
	}
	if err := n.Validate(); err != nil {
		return "", err
	}

	if err := s.recorder.commit(n); err != nil {
		return "", fmt.Errorf("failed to hand note to store: %w", err)
	}

	s.state = StateCommitted
	s.recorder.release(s)
	if s.logger != nil {
		s.logger.Info("capture committed", "id", n.ID, "title", n.Title)
	}
	return n.ID, nil
}

// Discard abandons the session without creating a note. Valid from Recording
// or Reviewing. Any open transcription stream is closed.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording && s.state != StateReviewing {
		return fmt.Errorf("%w: discard from %s", core.ErrInvalidTransition, s.state)
	}
	s.state = StateDiscarded
	s.cancel()
	s.recorder.release(s)
	if s.logger != nil {
		s.logger.Debug("capture discarded")
	}
	return nil
}

// Recorder creates capture sessions and guarantees that only one is active.
type Recorder struct {
	mu     sync.Mutex
	active *Session

	source   core.TranscriptionSource
	commit   CommitFunc
	identity func() *core.Identity
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder wires a recorder to its transcription source and commit sink.
// identity supplies the owner for committed notes; it may return nil while
// signed out, in which case commits are still built (the sink decides).
func NewRecorder(source core.TranscriptionSource, commit CommitFunc, identity func() *core.Identity, logger *slog.Logger) *Recorder {
	return &Recorder{
		source:   source,
		commit:   commit,
		identity: identity,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins a new capture session: it opens the transcription stream and
// transitions the session to Recording. Starting while another session is
// active fails with ErrInvalidTransition and opens no second subscription.
func (r *Recorder) Start(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, core.ErrSessionActive
	}

	streamCtx, cancel := context.WithCancel(ctx)
	fragments, err := r.source.Stream(streamCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open transcription stream: %w", err)
	}

	s := &Session{
		state:     StateRecording,
		startedAt: r.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		recorder:  r,
		logger:    r.logger,
	}
	r.active = s

	go func() {
		defer close(s.done)
		for f := range fragments {
			s.appendFragment(f.Text)
		}
	}()

	if r.logger != nil {
		r.logger.Debug("capture started")
	}
	return s, nil
}

// Active returns the currently recording or reviewing session, or nil.
func (r *Recorder) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// release clears the active slot once a session reaches a terminal state.
func (r *Recorder) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == s {
		r.active = nil
	}
}
