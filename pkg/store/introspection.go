package store

import (
	"github.com/aretw0/introspection"

	"github.com/aretw0/speaknote/pkg/core"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Owner     string `json:"owner"`
	Notes     int    `json:"notes"`
	Dirty     int    `json:"dirty"`
	Conflicts int    `json:"conflicts"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirty := 0
	conflicts := 0
	for _, n := range s.notes {
		if n.Dirty() {
			dirty++
		}
		if n.SyncState == core.StateConflict {
			conflicts++
		}
	}

	return StoreState{
		Owner:     s.owner,
		Notes:     len(s.notes),
		Dirty:     dirty,
		Conflicts: conflicts,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
