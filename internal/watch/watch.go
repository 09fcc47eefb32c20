// Package watch monitors the database and revision documents for changes and
// reruns artifact generation after each quiet period. It backs `yu watch`.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"yukemuri/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period between a change burst and the rebuild.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reruns a build function whenever the watched paths change.
type Watcher struct {
	paths    []string
	debounce time.Duration
	onChange func(paths []string)
}

// New creates a watcher over the given files and directories. fn receives the
// sorted set of paths that changed during the burst.
func New(paths []string, debounce time.Duration, fn func(paths []string)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{paths: paths, debounce: debounce, onChange: fn}
}

// Run watches until ctx is cancelled. Directories are watched directly;
// for plain files the parent directory is watched and events are filtered,
// which survives editors that replace files on save.
func (w *Watcher) Run(ctx context.Context) error {
	log := logging.L(logging.SubWatch)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer fsw.Close()

	watched := make(map[string]struct{})
	files := make(map[string]struct{})
	for _, p := range w.paths {
		info, err := os.Stat(p)
		dir := p
		if err != nil || !info.IsDir() {
			files[filepath.Clean(p)] = struct{}{}
			dir = filepath.Dir(p)
		}
		if _, ok := watched[dir]; ok {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		watched[dir] = struct{}{}
		log.Debugf("watching %s", dir)
	}

	deb := NewDebouncer(w.debounce, func(paths []string) {
		sort.Strings(paths)
		log.Infof("change detected: %s", strings.Join(paths, ", "))
		w.onChange(paths)
	})
	defer deb.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev, files) {
				continue
			}
			deb.Trigger(filepath.Clean(ev.Name))
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warnf("watch error: %v", err)
		}
	}
}

// relevant filters out noise: SQLite sidecar files, editor temp files, and
// events for files we were not asked to track.
func (w *Watcher) relevant(ev fsnotify.Event, files map[string]struct{}) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	base := filepath.Base(name)
	switch {
	case strings.HasSuffix(base, "-wal"), strings.HasSuffix(base, "-shm"),
		strings.HasSuffix(base, "-journal"):
		return false
	case strings.HasSuffix(base, "~"), strings.HasPrefix(base, "."):
		return false
	}
	if len(files) == 0 {
		return true
	}
	if _, ok := files[name]; ok {
		return true
	}
	// Anything under a watched directory passes.
	for _, p := range w.paths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if strings.HasPrefix(name, filepath.Clean(p)+string(filepath.Separator)) {
				return true
			}
		}
	}
	return false
}
