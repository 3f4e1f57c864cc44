// Package lifecycle exposes the note store's change feed as a
// lifecycle.Source, so a host application can run it in a lifecycle-managed
// event loop alongside its other sources.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/speaknote/pkg/core"
	"github.com/aretw0/speaknote/pkg/store"
)

// Source forwards a store's change events, optionally filtered by event type.
// Construct with NewSource.
type Source struct {
	store *store.Store
	keep  map[core.EventType]struct{}
	out   chan lifecycle.Event
}

var _ lifecycle.Source = (*Source)(nil)

// NewSource wraps the store's change feed. With no types given every event is
// forwarded; otherwise only events of the listed types pass through.
func NewSource(st *store.Store, types ...core.EventType) *Source {
	s := &Source{store: st, out: make(chan lifecycle.Event)}
	if len(types) > 0 {
		s.keep = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			s.keep[t] = struct{}{}
		}
	}
	return s
}

// Events returns the forwarded stream. It closes when the feed ends or the
// Start context is cancelled.
func (s *Source) Events() <-chan lifecycle.Event {
	return s.out
}

// Start begins pumping events on a supervised goroutine.
func (s *Source) Start(ctx context.Context) error {
	feed := s.store.Events()
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			var e core.Event
			var ok bool
			select {
			case <-ctx.Done():
				return nil
			case e, ok = <-feed:
				if !ok {
					return nil
				}
			}
			if !s.wants(e.Type) {
				continue
			}
			select {
			case s.out <- e:
			case <-ctx.Done():
				return nil
			}
		}
	})
	return nil
}

func (s *Source) wants(t core.EventType) bool {
	if s.keep == nil {
		return true
	}
	_, ok := s.keep[t]
	return ok
}
