package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounceWindow = 200 * time.Millisecond

// ResyncSignals implements core.Resyncable: it watches the store tree and
// emits one coalesced signal per burst of file changes, so the engine can
// refresh its view when another process touches the backing files.
//
// Our own writes also trip the watcher; the resulting resync is redundant
// but harmless, and distinguishing them is not worth the bookkeeping.
func (r *Remote) ResyncSignals(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := r.watchTree(watcher); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	signals := make(chan struct{}, 1)
	window := r.config.DebounceWindow
	if window <= 0 {
		window = defaultDebounceWindow
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer watcher.Close()
		defer close(signals)

		timer := time.NewTimer(window)
		if !timer.Stop() {
			<-timer.C
		}
		armed := false

		for {
			select {
			case <-ctx.Done():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if r.shouldIgnore(event.Name) {
					continue
				}
				// New owner directories must be watched as they appear.
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = watcher.Add(event.Name)
					}
				}
				if !timer.Stop() && armed {
					<-timer.C
				}
				timer.Reset(window)
				armed = true

			case <-timer.C:
				armed = false
				select {
				case signals <- struct{}{}:
				default:
					// A signal is already queued; one resync covers both.
				}

			case werr, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if r.config.Logger != nil {
					r.config.Logger.Error("fsnotify error", "error", werr)
				}
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		if r.config.Logger != nil {
			r.config.Logger.Error("watcher panic", "error", err)
		}
	}))

	return signals, nil
}

// watchTree adds the root and every owner directory to the watcher.
func (r *Remote) watchTree(watcher *fsnotify.Watcher) error {
	if err := watcher.Add(r.path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.path, err)
	}
	entries, err := os.ReadDir(r.path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := watcher.Add(filepath.Join(r.path, entry.Name())); err != nil {
			return fmt.Errorf("failed to watch %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// shouldIgnore filters events from the system directory, atomic-write temp
// files, and any user-configured ignore patterns.
func (r *Remote) shouldIgnore(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, TempFilePrefix) {
		return true
	}

	rel, err := filepath.Rel(r.path, name)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	if rel == SystemDir || strings.HasPrefix(rel, SystemDir+"/") {
		return true
	}

	for _, pattern := range r.config.IgnorePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}
