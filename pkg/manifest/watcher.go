package manifest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher watches a manifest file and delivers freshly parsed manifests
// whenever the file changes on disk.
type Watcher struct {
	logger  zerolog.Logger
	path    string
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the manifest at path.
func NewWatcher(logger zerolog.Logger, path string) *Watcher {
	return &Watcher{
		logger: logger.With().Str("component", "manifest-watcher").Logger(),
		path:   filepath.Clean(path),
	}
}

// Watch starts watching the manifest file and calls reloadFn with each
// successfully reparsed manifest. Editors replace files through rename and
// create, so the containing directory is watched and events are filtered to
// the manifest path. Rapid event bursts are debounced into a single reload.
func (w *Watcher) Watch(ctx context.Context, reloadFn func(*FullFel4Manifest) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	w.watcher = watcher

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go w.processEvents(ctx, reloadFn)

	w.logger.Info().
		Str("path", w.path).
		Msg("Started watching manifest")

	return nil
}

// processEvents processes file system events and triggers reloads.
func (w *Watcher) processEvents(ctx context.Context, reloadFn func(*FullFel4Manifest) error) {
	// Debounce reload events
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if w.watcher != nil {
				_ = w.watcher.Close()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != w.path {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.logger.Debug().
					Str("file", event.Name).
					Str("op", event.Op.String()).
					Msg("Manifest file changed")

				// Debounce reload
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(reloadDelay, func() {
					if err := w.triggerReload(reloadFn); err != nil {
						w.logger.Error().Err(err).Msg("Failed to reload manifest")
					}
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// triggerReload reparses the manifest and hands it to the reload callback.
func (w *Watcher) triggerReload(reloadFn func(*FullFel4Manifest) error) error {
	manifest, err := LoadFullManifest(w.path)
	if err != nil {
		return fmt.Errorf("failed to reload manifest: %w", err)
	}

	if err := reloadFn(manifest); err != nil {
		return fmt.Errorf("failed to apply reloaded manifest: %w", err)
	}

	w.logger.Info().
		Int("layers", len(manifest.Layers)).
		Msg("Manifest reloaded successfully")

	return nil
}

// Stop stops watching for file changes.
func (w *Watcher) Stop() error {
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
