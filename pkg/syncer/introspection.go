package syncer

import (
	"github.com/aretw0/introspection"
)

// EngineState exposes internal state for observability.
type EngineState struct {
	Started        bool  `json:"started"`
	Pending        int   `json:"pending"`
	InFlight       int   `json:"in_flight"`
	MaxConcurrency int64 `json:"max_concurrency,omitempty"`
}

// State implements introspection.Introspectable.
func (e *Engine) State() any {
	e.mu.Lock()
	defer e.mu.Unlock()

	return EngineState{
		Started:        e.started,
		Pending:        len(e.pending),
		InFlight:       len(e.inFlight),
		MaxConcurrency: e.maxConc,
	}
}

// ComponentType implements introspection.Component.
func (e *Engine) ComponentType() string {
	return "syncer"
}

var _ introspection.Introspectable = (*Engine)(nil)
var _ introspection.Component = (*Engine)(nil)
