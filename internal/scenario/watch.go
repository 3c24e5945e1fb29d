package scenario

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is how long the watcher waits after the last write
// before rerunning a scenario.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reruns scenario files whenever they change on disk.
type Watcher struct {
	watcher  *fsnotify.Watcher
	paths    map[string]bool
	debounce time.Duration
	onChange func(path string)
	logger   zerolog.Logger
}

// NewWatcher watches the given scenario files. Paths that do not exist are
// skipped; onChange receives the cleaned path of each changed file.
func NewWatcher(paths []string, debounce time.Duration, logger zerolog.Logger, onChange func(path string)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	// Editors often replace files instead of writing them, so the parent
	// directory is watched and events are filtered by name.
	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			logger.Warn().Str("path", p).Err(err).Msg("skipping scenario")
			continue
		}
		clean := filepath.Clean(p)
		watched[clean] = true
		dir := filepath.Dir(clean)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %q: %w", dir, err)
		}
		dirs[dir] = true
	}
	if len(watched) == 0 {
		watcher.Close()
		return nil, fmt.Errorf("no scenario files to watch")
	}

	return &Watcher{
		watcher:  watcher,
		paths:    watched,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}, nil
}

// Run delivers debounced change notifications. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(event.Name)
			if !w.paths[path] {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			mu.Lock()
			if t, ok := timers[path]; ok {
				t.Stop()
			}
			timers[path] = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				w.logger.Debug().Str("path", path).Msg("scenario changed")
				w.onChange(path)
			})
			mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("file watcher error")
		}
	}
}
