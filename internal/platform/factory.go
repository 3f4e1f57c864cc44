package platform

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/speaknote/pkg/adapters/fs"
	"github.com/aretw0/speaknote/pkg/adapters/memory"
	"github.com/aretw0/speaknote/pkg/adapters/sqlite"
	"github.com/aretw0/speaknote/pkg/core"
	"github.com/aretw0/speaknote/pkg/syncer"
)

// Settings is the resolved configuration the composition root wires with.
type Settings struct {
	Logger         *slog.Logger
	MaxConcurrency int64
	Backoff        syncer.Backoff
	RequestTimeout time.Duration
	EventBuffer    int
}

// Init resolves the options and builds the configured remote store.
// The 'uri' argument is adapter-specific: a directory for 'fs', a database
// file for 'sqlite', ignored for 'memory'.
func Init(uri string, opts ...Option) (core.RemoteStore, Settings, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	settings := Settings{
		Logger:         o.logger,
		MaxConcurrency: o.maxConcurrency,
		Backoff:        o.backoff,
		RequestTimeout: o.requestTimeout,
		EventBuffer:    o.eventBuffer,
	}

	if o.remote != nil {
		return o.remote, settings, nil
	}

	var remote core.RemoteStore
	var err error
	switch o.adapter {
	case "fs":
		remote, err = fs.New(fs.Config{
			Path:           uri,
			Logger:         o.logger,
			AutoInit:       o.autoInit,
			IgnorePatterns: o.ignorePatterns,
		})
	case "sqlite":
		remote, err = sqlite.Open(uri)
	case "memory":
		remote = memory.New()
	default:
		return nil, settings, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
	if err != nil {
		return nil, settings, err
	}

	return remote, settings, nil
}
