package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/speaknote/pkg/core"
	"github.com/aretw0/speaknote/pkg/syncer"
)

// options holds the internal configuration for the engine.
type options struct {
	remote         core.RemoteStore
	logger         *slog.Logger
	adapter        string
	autoInit       bool
	ignorePatterns []string
	maxConcurrency int64
	backoff        syncer.Backoff
	requestTimeout time.Duration
	eventBuffer    int
}

// Option defines a functional option for configuring the engine.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter: "fs",
	}
}

// WithLogger sets the logger for all components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRemote allows injecting a custom remote store adapter (e.g. mock, API
// client). If provided, the adapter selection by name is skipped.
func WithRemote(remote core.RemoteStore) Option {
	return func(o *options) {
		o.remote = remote
	}
}

// WithAdapter selects the remote store adapter by name ("fs", "sqlite",
// "memory"). Defaults to "fs".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithAutoInit enables automatic initialization of the backing store
// (creates the directory for the fs adapter).
func WithAutoInit(auto bool) Option {
	return func(o *options) {
		o.autoInit = auto
	}
}

// WithIgnorePatterns sets extra doublestar globs the fs adapter's watcher
// skips.
func WithIgnorePatterns(patterns ...string) Option {
	return func(o *options) {
		o.ignorePatterns = patterns
	}
}

// WithMaxConcurrency bounds concurrent remote calls across notes.
// Zero means unbounded (per-note ordering is always preserved).
func WithMaxConcurrency(n int64) Option {
	return func(o *options) {
		o.maxConcurrency = n
	}
}

// WithBackoff overrides the retry policy for transient sync failures.
func WithBackoff(b syncer.Backoff) Option {
	return func(o *options) {
		o.backoff = b
	}
}

// WithRequestTimeout bounds each remote call.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = d
	}
}

// WithEventBuffer sets the size of the store's change-event channel.
// Zero means the store default (100).
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.eventBuffer = size
	}
}
