// Package fs implements core.RemoteStore on the local filesystem: one
// Markdown file with YAML frontmatter per note, grouped by owner. It stands
// in for the hosted store during development and lets another process (or a
// file sync tool) act as the "other device"; its watcher turns out-of-band
// file changes into resync signals.
package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/speaknote/pkg/core"
)

// SystemDir is the hidden directory reserved for adapter bookkeeping; the
// watcher ignores it.
const SystemDir = ".speaknote"

// Config holds the configuration for the filesystem remote store.
type Config struct {
	Path     string
	Logger   *slog.Logger
	AutoInit bool

	// IgnorePatterns are doublestar globs (relative to Path) the watcher
	// skips in addition to the system directory and temp files.
	IgnorePatterns []string

	// DebounceWindow coalesces bursts of file events into one resync
	// signal. Zero means defaultDebounceWindow.
	DebounceWindow time.Duration
}

// Remote implements core.RemoteStore over a directory tree.
//
// Layout: {Path}/{ownerID}/{noteID}.md. The note's version lives in the
// frontmatter; update and delete check it before touching the file, which
// makes concurrent writers from several processes safe enough for a
// development store (the write lock covers this process only).
type Remote struct {
	path   string
	config Config

	mu sync.Mutex // serializes read-modify-write cycles
}

// New creates a filesystem remote store rooted at config.Path.
func New(config Config) (*Remote, error) {
	if config.AutoInit {
		if err := os.MkdirAll(config.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	} else {
		info, err := os.Stat(config.Path)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("store path does not exist: %s", config.Path)
		}
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("store path is not a directory: %s", config.Path)
		}
	}
	return &Remote{path: config.Path, config: config}, nil
}

func (r *Remote) notePath(ownerID, id string) string {
	return filepath.Join(r.path, ownerID, id+".md")
}

// findNote locates a note file by ID across owner directories. The remote
// contract addresses notes by ID alone.
func (r *Remote) findNote(id string) (string, core.Note, error) {
	entries, err := os.ReadDir(r.path)
	if err != nil {
		return "", core.Note{}, err
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == SystemDir || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		p := r.notePath(entry.Name(), id)
		f, err := os.Open(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return "", core.Note{}, err
		}
		n, perr := parse(f)
		f.Close()
		if perr != nil {
			return "", core.Note{}, fmt.Errorf("failed to parse note %s: %w", id, perr)
		}
		n.ID = id
		return p, n, nil
	}
	return "", core.Note{}, &core.NotFoundError{ID: id}
}

// Create persists a new note and assigns a durable ID.
func (r *Remote) Create(ctx context.Context, n core.Note) (core.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return core.CreateResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	now := time.Now()

	stored := n
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Version = 1

	p := r.notePath(stored.OwnerID, id)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return core.CreateResult{}, fmt.Errorf("failed to create owner directory: %w", err)
	}
	data, err := serialize(stored)
	if err != nil {
		return core.CreateResult{}, err
	}
	if err := writeFileAtomic(p, data, 0644); err != nil {
		return core.CreateResult{}, err
	}

	if r.config.Logger != nil {
		r.config.Logger.Debug("note created", "id", id, "path", p)
	}
	return core.CreateResult{ID: id, CreatedAt: now, Version: 1}, nil
}

// Update applies fields if baseVersion matches the stored version.
func (r *Remote) Update(ctx context.Context, id string, baseVersion int64, fields core.Fields) (core.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return core.UpdateResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, stored, err := r.findNote(id)
	if err != nil {
		return core.UpdateResult{}, err
	}
	if stored.Version != baseVersion {
		latest := stored
		return core.UpdateResult{}, &core.ConflictError{ID: id, Latest: &latest}
	}

	stored.Title = fields.Title
	stored.Content = fields.Content
	stored.UpdatedAt = time.Now()
	stored.Version++

	data, err := serialize(stored)
	if err != nil {
		return core.UpdateResult{}, err
	}
	if err := writeFileAtomic(p, data, 0644); err != nil {
		return core.UpdateResult{}, err
	}

	return core.UpdateResult{UpdatedAt: stored.UpdatedAt, Version: stored.Version}, nil
}

// Delete removes a note if baseVersion matches.
func (r *Remote) Delete(ctx context.Context, id string, baseVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, stored, err := r.findNote(id)
	if err != nil {
		return err
	}
	if stored.Version != baseVersion {
		latest := stored
		return &core.ConflictError{ID: id, Latest: &latest}
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("failed to remove note file: %w", err)
	}
	return nil
}

// QueryByOwner returns all notes under the owner's directory.
func (r *Remote) QueryByOwner(ctx context.Context, ownerID string) ([]core.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Join(r.path, ownerID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var notes []core.Note
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		if strings.HasPrefix(entry.Name(), TempFilePrefix) {
			continue
		}
		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		n, perr := parse(f)
		f.Close()
		if perr != nil {
			if r.config.Logger != nil {
				r.config.Logger.Warn("skipping unparsable note file", "file", entry.Name(), "error", perr)
			}
			continue
		}
		n.ID = strings.TrimSuffix(entry.Name(), ".md")
		notes = append(notes, n)
	}
	return notes, nil
}

var _ core.RemoteStore = (*Remote)(nil)
var _ core.Resyncable = (*Remote)(nil)
